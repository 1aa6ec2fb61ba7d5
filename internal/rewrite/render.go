// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rewrite

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// The x/net/html renderer escapes quotes everywhere, which breaks template
// directives that live in text nodes (<%@ page import="..." %>). render
// serializes text and attributes with the HTML fragment serialization rules
// instead: text escapes & < > and U+00A0; attributes escape & " and U+00A0.

// The renderer's own escaping is bypassed: text becomes raw nodes escaped
// here, and attribute characters it would over-escape are swapped for
// noncharacters (U+FDD0 to U+FDD4) and swapped back after rendering. U+FDD5
// escapes any of those characters already present in the input so they
// survive the round trip.
const sentinelEscape = "\ufdd5"

var sentinels = []string{"\ufdd0", "\ufdd1", "\ufdd2", "\ufdd3", "\ufdd4"}

// escapeSentinelPairs returns replacer pairs that prefix every sentinel (and
// the escape itself) with the escape character.
func escapeSentinelPairs() []string {
	pairs := []string{sentinelEscape, sentinelEscape + sentinelEscape}
	for _, c := range sentinels {
		pairs = append(pairs, c, sentinelEscape+c)
	}
	return pairs
}

var (
	sentinelEscaper = strings.NewReplacer(escapeSentinelPairs()...)

	textEscaper = strings.NewReplacer(append(escapeSentinelPairs(),
		"&", "&amp;",
		"\u00a0", "&nbsp;",
		"<", "&lt;",
		">", "&gt;",
	)...)

	attrHide = strings.NewReplacer(append(escapeSentinelPairs(),
		"<", "\ufdd0",
		">", "\ufdd1",
		"'", "\ufdd2",
		"\u00a0", "\ufdd3",
		`"`, "\ufdd4",
	)...)

	attrRestore = strings.NewReplacer(restorePairs()...)
)

// restorePairs undoes escaped sentinels first, then maps bare sentinels to
// their serialized form.
func restorePairs() []string {
	var pairs []string
	pairs = append(pairs, sentinelEscape+sentinelEscape, sentinelEscape)
	for _, c := range sentinels {
		pairs = append(pairs, sentinelEscape+c, c)
	}
	return append(pairs,
		"\ufdd0", "<",
		"\ufdd1", ">",
		"\ufdd2", "'",
		"\ufdd3", "&nbsp;",
		"\ufdd4", "&quot;",
	)
}

// literalTextParents are the elements whose text children the renderer
// writes verbatim.
var literalTextParents = map[string]bool{
	"iframe":    true,
	"noembed":   true,
	"noframes":  true,
	"noscript":  true,
	"plaintext": true,
	"script":    true,
	"style":     true,
	"xmp":       true,
}

func render(doc *goquery.Document) (string, error) {
	for _, n := range doc.Nodes {
		prepare(n)
	}
	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("serializing document: %w", err)
	}
	return attrRestore.Replace(out), nil
}

// prepare rewrites n's subtree in place so the renderer emits the
// serialization described above.
func prepare(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if p := n.Parent; p != nil && p.Type == html.ElementNode && p.Namespace == "" && literalTextParents[p.Data] {
			n.Data = sentinelEscaper.Replace(n.Data)
			return
		}
		n.Type = html.RawNode
		n.Data = textEscaper.Replace(n.Data)
	case html.CommentNode:
		n.Type = html.RawNode
		n.Data = "<!--" + sentinelEscaper.Replace(n.Data) + "-->"
	case html.ElementNode:
		for i := range n.Attr {
			n.Attr[i].Val = attrHide.Replace(n.Attr[i].Val)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		prepare(c)
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rewrite turns inline event-handler attributes into unobtrusive,
// class-keyed jQuery bindings.
//
// Every element carrying one of the recognized handler attributes loses the
// attribute and gains a generated class plus data-paramN attributes holding
// the call's arguments. A single script appended to the body binds one
// delegated click handler per generated class. The serialized document is
// then passed through an ordered repair pipeline (see Repair) that undoes the
// parser's structural wrappers and escaped template directives.
package rewrite

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	mrand "math/rand/v2"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pdiddy/unobtrude/pkg/types"
)

// Events lists the handler attributes rewritten, in processing order.
var Events = []string{"onclick", "onchange", "onerror", "onload"}

const (
	// classPrefix starts every generated class name.
	classPrefix = "convert"
	// noncePlaceholder is the EL expression emitted in placeholder mode.
	noncePlaceholder = "${nonce}"

	tokenLength   = 9
	tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Options configures a Transformer. The zero value emits the nonce
// placeholder and skips the "&gt;" repair rule; use DefaultOptions for the
// legacy behavior.
type Options struct {
	// Nonce selects the nonce attribute on the generated script.
	Nonce types.NonceMode

	// CloseConditionalOnGT enables the trailing "&gt;" → "</c:if>>" rule.
	CloseConditionalOnGT bool

	// Token returns the random suffix of a generated class. Nil uses a
	// 9-character base36 token.
	Token func() string

	// OnRewrite, if set, is called once per rewritten attribute with the
	// attribute name (e.g. "onclick").
	OnRewrite func(event string)
}

// DefaultOptions returns the options matching the legacy converter.
func DefaultOptions() Options {
	return Options{Nonce: types.NoncePlaceholder, CloseConditionalOnGT: true}
}

// OptionsFromConfig builds Options from the rewrite settings.
func OptionsFromConfig(cfg types.RewriteConfig) Options {
	return Options{Nonce: cfg.Nonce, CloseConditionalOnGT: cfg.CloseConditionalOnGT}
}

// Transformer rewrites one document at a time. It is safe for concurrent use.
type Transformer struct {
	opts  Options
	rules []Rule
}

// New creates a Transformer.
func New(opts Options) *Transformer {
	if opts.Nonce == "" {
		opts.Nonce = types.NoncePlaceholder
	}
	if opts.Token == nil {
		opts.Token = randomToken
	}
	return &Transformer{opts: opts, rules: DefaultRules(opts.CloseConditionalOnGT)}
}

// Convert parses content leniently, rewrites every handler attribute, appends
// the binding script and returns the repaired serialization. Malformed markup
// never fails; an error is returned only if serialization itself fails.
func (t *Transformer) Convert(content string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parsing document: %w", err)
	}

	var s script
	for _, attr := range Events {
		suffix := strings.TrimPrefix(attr, "on")
		doc.Find("[" + attr + "]").Each(func(_ int, sel *goquery.Selection) {
			value, _ := sel.Attr(attr)
			call := ParseCall(value)

			sel.RemoveAttr(attr)
			class := classPrefix + "-" + suffix + "-" + t.opts.Token()
			sel.AddClass(class)
			for i, p := range call.Params {
				sel.SetAttr(fmt.Sprintf("data-param%d", i+1), dataValue(p))
			}
			s.addHandler(class, call)

			if t.opts.OnRewrite != nil {
				t.opts.OnRewrite(attr)
			}
		})
	}

	node, err := t.scriptNode(s.String())
	if err != nil {
		return "", err
	}
	scriptParent(doc).AppendNodes(node)

	out, err := render(doc)
	if err != nil {
		return "", err
	}
	return Repair(out, t.rules), nil
}

// scriptParent returns the element the script is appended to: the body, or
// the frameset of a frameset document, or the root element, or the document
// itself.
func scriptParent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"body", "frameset", "html"} {
		if found := doc.Find(sel); found.Length() > 0 {
			return found.First()
		}
	}
	return doc.Selection
}

// scriptNode builds the <script> element holding the bindings.
func (t *Transformer) scriptNode(body string) (*html.Node, error) {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
	}
	switch t.opts.Nonce {
	case types.NoncePlaceholder:
		n.Attr = append(n.Attr, html.Attribute{Key: "nonce", Val: noncePlaceholder})
	case types.NonceRandom:
		nonce, err := randomNonce()
		if err != nil {
			return nil, err
		}
		n.Attr = append(n.Attr, html.Attribute{Key: "nonce", Val: nonce})
	case types.NonceOmit:
	default:
		return nil, fmt.Errorf("unknown nonce mode %q", t.opts.Nonce)
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "type", Val: "text/javascript"})
	n.AppendChild(&html.Node{Type: html.TextNode, Data: body})
	return n, nil
}

func randomToken() string {
	b := make([]byte, tokenLength)
	for i := range b {
		b[i] = tokenAlphabet[mrand.IntN(len(tokenAlphabet))]
	}
	return string(b)
}

func randomNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

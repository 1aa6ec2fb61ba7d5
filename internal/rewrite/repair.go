// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rewrite

import (
	"regexp"
	"strings"
)

// Rule is one step of the post-serialization repair pipeline.
type Rule struct {
	Name  string
	Apply func(string) string
}

// stripFirst removes the first match of pattern.
func stripFirst(name, pattern string) Rule {
	re := regexp.MustCompile(pattern)
	return Rule{
		Name: name,
		Apply: func(s string) string {
			loc := re.FindStringIndex(s)
			if loc == nil {
				return s
			}
			return s[:loc[0]] + s[loc[1]:]
		},
	}
}

// replaceAll replaces every occurrence of old with new.
func replaceAll(name, old, new string) Rule {
	return Rule{
		Name:  name,
		Apply: func(s string) string { return strings.ReplaceAll(s, old, new) },
	}
}

// structuralRules drop the wrapper tags the parser adds, since the output is
// a fragment re-embedded in a larger template.
var structuralRules = []Rule{
	stripFirst("html open", `<html[^>]*>`),
	stripFirst("html close", `</html>`),
	stripFirst("head open", `<head[^>]*>`),
	stripFirst("head close", `</head>`),
	stripFirst("body open", `<body[^>]*>`),
	stripFirst("body close", `</body>`),
}

// directiveRules put back template syntax the serializer escaped.
var directiveRules = []Rule{
	replaceAll("body close entity", "&lt;/body&gt;", "</body>"),
	replaceAll("html close entity", "&lt;/html&gt;", "</html>"),
	replaceAll("directive open", "&lt;%@", "<%@"),
	replaceAll("scriptlet close", "%&gt;", "%>"),
	replaceAll("scriptlet open", "&lt;%", "<%"),
}

// closeConditionalRule turns every remaining "&gt;" into "</c:if>>". It is
// lossy: any ">" in text that survived the earlier rules is rewritten too.
var closeConditionalRule = replaceAll("close conditional", "&gt;", "</c:if>>")

// DefaultRules returns the repair pipeline in application order. When
// closeConditional is false the trailing "&gt;" rule is left out.
func DefaultRules(closeConditional bool) []Rule {
	rules := make([]Rule, 0, len(structuralRules)+len(directiveRules)+1)
	rules = append(rules, structuralRules...)
	rules = append(rules, directiveRules...)
	if closeConditional {
		rules = append(rules, closeConditionalRule)
	}
	return rules
}

// Repair applies rules to s in order.
func Repair(s string, rules []Rule) string {
	for _, r := range rules {
		s = r.Apply(s)
	}
	return s
}

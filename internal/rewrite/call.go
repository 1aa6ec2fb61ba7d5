// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rewrite

import "strings"

// Call is an inline handler value split into a function name and its
// positional arguments, e.g. "doThing('a', b)" → {doThing, ['a', b]}.
type Call struct {
	Function string
	Params   []string
}

// ParseCall splits a handler attribute value. The function name is the text
// before the first "(" and the parameters are the text between that "(" and
// the last ")", split on every comma. Commas inside nested calls or string
// literals are not respected.
//
// Missing delimiters follow substring semantics: an absent "(" or ")" counts
// as index 0 and reversed bounds are swapped. So "alert)" yields the
// parameter "alert" with no function name, and "foo('a'" yields the single
// parameter "foo(".
func ParseCall(value string) Call {
	open := strings.Index(value, "(")
	call := Call{Function: strings.TrimSpace(substring(value, 0, open))}

	inner := strings.TrimSpace(substring(value, open+1, strings.LastIndex(value, ")")))
	if inner == "" {
		return call
	}
	for _, p := range strings.Split(inner, ",") {
		call.Params = append(call.Params, strings.TrimSpace(p))
	}
	return call
}

// substring returns s[start:end] with negative bounds clamped to zero, bounds
// past the end clamped to len(s), and reversed bounds swapped.
func substring(s string, start, end int) string {
	clamp := func(i int) int { return max(0, min(i, len(s))) }
	start, end = clamp(start), clamp(end)
	if start > end {
		start, end = end, start
	}
	return s[start:end]
}

// dataValue is the data-param attribute value for a parameter: the
// parameter with every single quote removed.
func dataValue(param string) string {
	return strings.ReplaceAll(strings.TrimSpace(param), "'", "")
}

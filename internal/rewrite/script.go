// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rewrite

import (
	"fmt"
	"strings"
)

// script accumulates the delegated handlers for one document.
type script struct {
	handlers strings.Builder
}

// addHandler appends a click handler bound to class that reads each
// data-paramN value off the clicked element and calls the function with them.
func (s *script) addHandler(class string, call Call) {
	b := &s.handlers
	fmt.Fprintf(b, "        $(document).on('click', '.%s', function(event) {\n", class)
	b.WriteString("            event.preventDefault();\n")
	keys := make([]string, len(call.Params))
	for i := range call.Params {
		keys[i] = fmt.Sprintf("key%d", i+1)
		fmt.Fprintf(b, "            var %s = $(this).data('param%d');\n", keys[i], i+1)
	}
	fmt.Fprintf(b, "            %s(%s);\n", call.Function, strings.Join(keys, ", "))
	b.WriteString("        });\n")
}

// String returns the full script body: every handler, then the void(0)
// anchor guard, inside a single document-ready wrapper.
func (s *script) String() string {
	var b strings.Builder
	b.WriteString("\n    $(document).ready(function() {\n")
	b.WriteString(s.handlers.String())
	b.WriteString("        $(document).on('click', 'a[href=\"javascript:void(0);\"]', function(event) {\n")
	b.WriteString("            event.preventDefault();\n")
	b.WriteString("        });\n")
	b.WriteString("    });\n")
	return b.String()
}

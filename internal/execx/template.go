// SPDX-License-Identifier: MIT

package execx

import (
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\$[a-zA-Z]+`)

// Template is a whitespace-split command template with $name placeholders
// ($input, $output, $format, $framerate, $interval, $time, $language, $file,
// $thumbnail, $geometry). Substitution is purely textual.
type Template struct {
	tokens []string
}

// NewTemplate splits spec on whitespace. An empty spec yields an empty
// template.
func NewTemplate(spec string) Template {
	return Template{tokens: strings.Fields(spec)}
}

// Empty reports whether the template has no tokens.
func (t Template) Empty() bool {
	return len(t.tokens) == 0
}

// Bin returns the first token, the program to invoke.
func (t Template) Bin() string {
	if len(t.tokens) == 0 {
		return ""
	}
	return t.tokens[0]
}

// Render substitutes placeholders in every token after the first and returns
// the resulting argument vector. Unknown placeholders are left verbatim.
func (t Template) Render(vars map[string]string) []string {
	if len(t.tokens) <= 1 {
		return nil
	}
	args := make([]string, 0, len(t.tokens)-1)
	for _, tok := range t.tokens[1:] {
		args = append(args, placeholder.ReplaceAllStringFunc(tok, func(m string) string {
			if v, ok := vars[m[1:]]; ok {
				return v
			}
			return m
		}))
	}
	return args
}

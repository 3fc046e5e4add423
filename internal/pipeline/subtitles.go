// SPDX-License-Identifier: MIT

package pipeline

import (
	"regexp"
	"strings"
)

var (
	cueTimeRe  = regexp.MustCompile(`-->`)
	cueIndexRe = regexp.MustCompile(`^\d+$`)
	markupRe   = regexp.MustCompile(`<[^>]*>|\{\\[^}]*\}`)
	wordRe     = regexp.MustCompile(`[\p{L}\p{N}]`)
)

// ParseSubtitleText reduces an SRT or WebVTT document to plain dialogue
// text: cue indices, timestamp lines, headers and inline markup are dropped
// and whitespace is collapsed.
func ParseSubtitleText(doc string) string {
	var parts []string
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
		if line == "" || cueIndexRe.MatchString(line) || cueTimeRe.MatchString(line) {
			continue
		}
		if line == "WEBVTT" || strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") {
			continue
		}
		line = markupRe.ReplaceAllString(line, "")
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

// subtitleSane reports whether extracted text carries any word characters at
// all. Extraction sometimes yields empty cues or pure formatting.
func subtitleSane(text string) bool {
	return wordRe.MatchString(text)
}

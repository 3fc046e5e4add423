// SPDX-License-Identifier: MIT

package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

var geometryRe = regexp.MustCompile(`^(\d+)x(\d+)\+\d+\+\d+`)

// ParseIdentify converts the indented key/value dump of an image inspection
// tool into a nested map. The first line (the header naming the file) is
// dropped; every following line contributes at the depth given by its
// indentation, two spaces per level.
//
// Values are normalized: "True"/"False" become booleans, "Undefined" becomes
// nil, and purely numeric values become float64. A "geometry" key of the form
// WxH+X+Y additionally materializes "width", "height" and "aspect" keys in
// the same subtree; width and height never overwrite values already present
// there.
func ParseIdentify(out string) map[string]any {
	root := make(map[string]any)
	lines := strings.Split(out, "\n")
	if len(lines) <= 1 {
		return root
	}

	// stack[d] is the open subtree at depth d; depth 0 is the root
	stack := []map[string]any{root}
	for _, raw := range lines[1:] {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		depth := indentDepth(raw)
		if depth < 1 {
			depth = 1
		}
		if depth > len(stack) {
			depth = len(stack)
		}
		stack = stack[:depth]
		parent := stack[depth-1]

		key, value, hasValue := splitIdentifyLine(raw)
		if key == "" {
			continue
		}
		if !hasValue {
			child := make(map[string]any)
			parent[key] = child
			stack = append(stack, child)
			continue
		}
		parent[key] = normalizeValue(value)
		if key == "geometry" {
			expandGeometry(parent, value)
		}
	}
	return root
}

func indentDepth(line string) int {
	spaces := 0
	for _, r := range line {
		if r != ' ' {
			break
		}
		spaces++
	}
	return spaces / 2
}

// splitIdentifyLine splits "Key: value" into a lowercase key and its value.
// A line ending in a bare colon opens a subtree.
func splitIdentifyLine(line string) (key, value string, hasValue bool) {
	trimmed := strings.TrimSpace(line)
	i := strings.Index(trimmed, ":")
	if i < 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(trimmed[:i]))
	value = strings.TrimSpace(trimmed[i+1:])
	return key, value, value != ""
}

func normalizeValue(v string) any {
	switch v {
	case "True", "true":
		return true
	case "False", "false":
		return false
	case "Undefined", "undefined":
		return nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func expandGeometry(parent map[string]any, value string) {
	m := geometryRe.FindStringSubmatch(value)
	if m == nil {
		return
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	if _, ok := parent["width"]; !ok {
		parent["width"] = float64(w)
	}
	if _, ok := parent["height"]; !ok {
		parent["height"] = float64(h)
	}
	if h != 0 {
		parent["aspect"] = float64(w) / float64(h)
	}
}

// findDimensions walks the parsed tree for the first subtree carrying both
// width and height, returning them with the aspect ratio.
func findDimensions(tree map[string]any) (width, height int, aspect float64, ok bool) {
	w, wok := tree["width"].(float64)
	h, hok := tree["height"].(float64)
	if wok && hok {
		a, _ := tree["aspect"].(float64)
		return int(w), int(h), a, true
	}
	for _, v := range tree {
		if sub, isMap := v.(map[string]any); isMap {
			if w, h, a, found := findDimensions(sub); found {
				return w, h, a, true
			}
		}
	}
	return 0, 0, 0, false
}

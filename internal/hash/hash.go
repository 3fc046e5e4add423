// SPDX-License-Identifier: MIT

// Package hash fingerprints files through the configured content-hash tool.
package hash

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mediadex/mediadex/internal/execx"
)

// ErrHashFailed marks a failed or unparsable hash-tool invocation.
var ErrHashFailed = errors.New("hash failed")

// Hasher wraps a shasum-style executable. Its stdout is expected to begin
// with the fingerprint as the first whitespace-delimited token.
type Hasher struct {
	Bin  string
	Exec execx.Exec
}

// New returns a Hasher using bin (e.g. "sha256sum").
func New(bin string, exec execx.Exec) *Hasher {
	return &Hasher{Bin: bin, Exec: exec}
}

// Sum returns the lowercase fingerprint of the file at path.
func (h *Hasher) Sum(ctx context.Context, path string) (string, error) {
	res, err := h.Exec.Run(ctx, h.Bin, []string{path})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrHashFailed, path, err)
	}
	fields := strings.Fields(strings.TrimSpace(res.Stdout))
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: %s: empty output from %s", ErrHashFailed, path, h.Bin)
	}
	return strings.ToLower(fields[0]), nil
}

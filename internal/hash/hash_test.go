// SPDX-License-Identifier: MIT

package hash

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediadex/mediadex/internal/execx"
)

type fakeExec struct {
	stdout string
	err    error
}

func (f fakeExec) Run(ctx context.Context, bin string, args []string) (execx.Result, error) {
	return execx.Result{Stdout: f.stdout}, f.err
}

func (f fakeExec) RunStream(ctx context.Context, bin string, args []string, onLine func(string)) (int, error) {
	return 0, f.err
}

func TestHasher_Sum(t *testing.T) {
	h := New("sha256sum", fakeExec{stdout: "D41D8CD98F00B204E9800998ECF8427E  /in/a.mp4\n"})
	fp, err := h.Sum(context.Background(), "/in/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", fp)
}

func TestHasher_SumExecError(t *testing.T) {
	h := New("sha256sum", fakeExec{err: execx.ErrExecFailed})
	_, err := h.Sum(context.Background(), "/in/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHashFailed))
}

func TestHasher_SumEmptyOutput(t *testing.T) {
	h := New("sha256sum", fakeExec{stdout: "   \n"})
	_, err := h.Sum(context.Background(), "/in/a.mp4")
	assert.True(t, errors.Is(err, ErrHashFailed))
}

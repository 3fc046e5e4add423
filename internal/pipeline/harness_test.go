// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediadex/mediadex/internal/bus"
	"github.com/mediadex/mediadex/internal/catalog"
	"github.com/mediadex/mediadex/internal/config"
	"github.com/mediadex/mediadex/internal/execx"
	"github.com/mediadex/mediadex/internal/hash"
	"github.com/mediadex/mediadex/internal/search"
	"github.com/mediadex/mediadex/internal/ui"
)

// fakeExec routes every invocation through a scriptable handler.
type fakeExec struct {
	handler func(bin string, args []string, onLine func(string)) (execx.Result, error)
}

func (f *fakeExec) Run(ctx context.Context, bin string, args []string) (execx.Result, error) {
	return f.handler(bin, args, nil)
}

func (f *fakeExec) RunStream(ctx context.Context, bin string, args []string, onLine func(string)) (int, error) {
	res, err := f.handler(bin, args, onLine)
	return res.ExitCode, err
}

// hashFile mimics a shasum tool over the file at path.
func hashFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return hashBytes(data)
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// shasumHandler answers "sha256sum <path>" invocations; other bins fall
// through to next.
func shasumHandler(next func(bin string, args []string, onLine func(string)) (execx.Result, error)) func(string, []string, func(string)) (execx.Result, error) {
	return func(bin string, args []string, onLine func(string)) (execx.Result, error) {
		if bin == "sha256sum" {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return execx.Result{ExitCode: 1}, err
			}
			return execx.Result{Stdout: hashBytes(data) + "  " + args[0]}, nil
		}
		if next == nil {
			return execx.Result{}, nil
		}
		return next(bin, args, onLine)
	}
}

func newCore(t *testing.T, exec execx.Exec) *Core {
	t.Helper()
	return &Core{
		Catalog: catalog.NewMemory(),
		Search:  search.Noop{},
		Hasher:  hash.New("sha256sum", exec),
		Exec:    exec,
		Slots:   NewSlotPool(2),
		UI:      ui.Nop{},
		Bus:     bus.New(),
		Stats:   &Stats{},
		Version: "test",
	}
}

func testEffective(save string) config.Effective {
	return config.Effective{CanSkip: true, Mode: 0o644, Save: save}
}

// convertOne runs a single conversion under an acquired slot, the way the
// dispatcher would.
func convertOne(t *testing.T, core *Core, conv Converter, file string) error {
	t.Helper()
	slot := core.Slots.Acquire()
	require.NotNil(t, slot)
	defer core.Slots.Release(slot)
	return conv.Convert(context.Background(), slot, file)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

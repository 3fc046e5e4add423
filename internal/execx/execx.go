// SPDX-License-Identifier: MIT

// Package execx is the uniform capability for invoking the external tools the
// pipelines depend on (hashing, probing, transcoding, identification). No
// shell is involved; argument vectors are passed through verbatim.
package execx

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/mediadex/mediadex/internal/log"
	"github.com/mediadex/mediadex/internal/procgroup"
)

// ErrExecFailed marks a non-zero exit or a failure to start the program.
var ErrExecFailed = errors.New("exec failed")

// Result holds the captured output of a completed process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Exec runs external programs. The concrete implementation is System;
// pipeline tests substitute fakes.
type Exec interface {
	// Run executes bin with args and waits for completion. A non-zero exit
	// returns the Result alongside an error wrapping ErrExecFailed.
	Run(ctx context.Context, bin string, args []string) (Result, error)

	// RunStream executes bin with args, delivering each stderr line (split on
	// both newlines and carriage returns, so transcoder progress updates
	// surface) to onLine. It returns the exit code.
	RunStream(ctx context.Context, bin string, args []string, onLine func(string)) (int, error)
}

// System executes real processes, each in its own process group.
type System struct{}

func (System) Run(ctx context.Context, bin string, args []string) (Result, error) {
	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 -- tool paths come from operator config
	procgroup.Set(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd, err),
	}
	if err != nil {
		return res, fmt.Errorf("%w: %s (exit %d): %s", ErrExecFailed, bin, res.ExitCode, lastLine(res.Stderr))
	}
	return res, nil
}

func (System) RunStream(ctx context.Context, bin string, args []string, onLine func(string)) (int, error) {
	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204
	procgroup.Set(cmd)
	cmd.Cancel = func() error {
		return procgroup.Kill(cmd, syscall.SIGKILL)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 1, fmt.Errorf("%w: %s: stderr pipe: %v", ErrExecFailed, bin, err)
	}

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("%w: %s: %v", ErrExecFailed, bin, err)
	}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanCRLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if onLine != nil {
			onLine(line)
		}
	}
	if serr := scanner.Err(); serr != nil {
		lg := log.WithComponent("exec")
		lg.Debug().Err(serr).Str("bin", bin).Msg("stderr stream truncated")
	}

	waitErr := cmd.Wait()
	code := exitCode(cmd, waitErr)
	if waitErr != nil {
		return code, fmt.Errorf("%w: %s (exit %d)", ErrExecFailed, bin, code)
	}
	return code, nil
}

// scanCRLines behaves like bufio.ScanLines but also treats a bare carriage
// return as a line boundary. ffmpeg rewrites its progress line with \r.
func scanCRLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return 1
	}
	return 0
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

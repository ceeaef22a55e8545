// Package input wraps blocking stdin reads so they can be cancelled. Plain
// bufio reads cannot be interrupted, so each read runs in a goroutine and the
// caller's context decides who wins.
package input

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
)

// ErrInputAborted signals that interactive input was interrupted, typically
// by Ctrl+C closing stdin or cancelling the context.
var ErrInputAborted = errors.New("input aborted")

// IsAborted reports whether err represents a user-initiated abort.
func IsAborted(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInputAborted) || errors.Is(err, context.Canceled)
}

// MapInputError normalizes the stdin errors seen when the terminal goes away
// mid-read into ErrInputAborted. Other errors pass through unchanged.
func MapInputError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return ErrInputAborted
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "use of closed file") ||
		strings.Contains(errStr, "bad file descriptor") ||
		strings.Contains(errStr, "file already closed") {
		return ErrInputAborted
	}
	return err
}

// ctxAbortErr translates context termination into the error the caller
// should see: DeadlineExceeded for timeouts, ErrInputAborted otherwise.
func ctxAbortErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return ErrInputAborted
}

// ReadLineWithContext reads one line from reader, honoring ctx cancellation.
// The underlying read goroutine stays blocked until stdin produces data or
// closes; that is unavoidable with os.Stdin.
func ReadLineWithContext(ctx context.Context, reader *bufio.Reader) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := reader.ReadString('\n')
		ch <- result{line: line, err: MapInputError(err)}
	}()
	select {
	case <-ctx.Done():
		return "", ctxAbortErr(ctx)
	case res := <-ch:
		return res.line, res.err
	}
}

// ReadPasswordWithContext reads a passphrase without echo, honoring ctx
// cancellation. readPassword is typically term.ReadPassword.
func ReadPasswordWithContext(ctx context.Context, readPassword func(int) ([]byte, error), fd int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if readPassword == nil {
		return nil, errors.New("readPassword function is nil")
	}
	type result struct {
		b   []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := readPassword(fd)
		ch <- result{b: b, err: MapInputError(err)}
	}()
	select {
	case <-ctx.Done():
		return nil, ctxAbortErr(ctx)
	case res := <-ch:
		return res.b, res.err
	}
}

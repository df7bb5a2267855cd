// Package termprompt provides a ready-made [piv.Prompter] and PIN/PUK entry
// helpers backed by the controlling terminal, for callers that don't want
// to write their own. term.MakeRaw and term.Restore bracket a single
// no-echo credential read.
package termprompt

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/cardkit/piv"
)

// TerminalPrompter implements piv.Prompter by writing a touch/biometric
// notice to the given writer. The zero value writes to os.Stderr.
type TerminalPrompter struct {
	Out io.Writer
}

// Prompt writes a one-line notice that the device is waiting on physical
// presence for slot. It never blocks; the device itself is what blocks.
func (p TerminalPrompter) Prompt(ctx context.Context, slot piv.Slot) {
	out := p.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, "piv: touch the device to continue (slot %s)\r\n", slot)
}

// ReadPIN prompts on the controlling terminal and reads a PIN with echo
// disabled, trimming the trailing newline. fd is typically
// int(os.Stdin.Fd()).
func ReadPIN(fd int, prompt string) (string, error) {
	return readCredential(fd, prompt)
}

// ReadPUK prompts on the controlling terminal and reads a PUK with echo
// disabled, trimming the trailing newline.
func ReadPUK(fd int, prompt string) (string, error) {
	return readCredential(fd, prompt)
}

// readCredential puts fd into raw mode for the duration of the read and
// restores it on every return path, including the early exit on Ctrl-C.
func readCredential(fd int, prompt string) (string, error) {
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return "", fmt.Errorf("termprompt: enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	fmt.Fprintf(os.Stderr, "%s\r\n", prompt)

	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			term.Restore(fd, oldState)
			return "", fmt.Errorf("termprompt: read: %w", err)
		}
		if n == 0 {
			continue
		}
		switch buf[0] {
		case 0x0D, 0x0A: // Enter
			fmt.Fprintf(os.Stderr, "\r\n")
			return strings.TrimRight(string(line), "\r\n"), nil
		case 0x03: // Ctrl-C
			term.Restore(fd, oldState)
			fmt.Fprintf(os.Stderr, "\r\n")
			return "", fmt.Errorf("termprompt: canceled")
		case 0x7F, 0x08: // Backspace/Delete
			if len(line) > 0 {
				line = line[:len(line)-1]
			}
		default:
			line = append(line, buf[0])
		}
	}
}

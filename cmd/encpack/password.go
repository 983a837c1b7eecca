package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/absfs/encpack"
	zxcvbn "github.com/nbutton23/zxcvbn-go"
	"golang.org/x/term"
)

// Environment variables that supply passwords without a prompt
const (
	PasswordEnvVar    = "ENCPACK_PASSWORD"
	NewPasswordEnvVar = "ENCPACK_NEW_PASSWORD"
)

// minPasswordScore is the lowest zxcvbn score accepted without a warning
const minPasswordScore = 3

var errPasswordMismatch = errors.New("passwords do not match")

// zeroBytes overwrites a byte slice with zeros
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// password returns the password from envVar, or prompts for it
func (a *app) password(envVar, prompt string) ([]byte, error) {
	if v, ok := a.getenv(envVar); ok && v != "" {
		return []byte(v), nil
	}
	return a.readPassword(prompt)
}

// passwordWithConfirm is password with a second prompt that must match
func (a *app) passwordWithConfirm(envVar, prompt, confirmPrompt string) ([]byte, error) {
	if v, ok := a.getenv(envVar); ok && v != "" {
		return []byte(v), nil
	}

	pw, err := a.readPassword(prompt)
	if err != nil {
		return nil, err
	}
	confirm, err := a.readPassword(confirmPrompt)
	if err != nil {
		zeroBytes(pw)
		return nil, err
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(pw, confirm) {
		zeroBytes(pw)
		return nil, errPasswordMismatch
	}
	return pw, nil
}

func (a *app) readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(a.stderr, prompt)

	var (
		pw  []byte
		err error
	)
	switch {
	case a.stdin != os.Stdin:
		// Injected input, one password per line
		if a.lines == nil {
			a.lines = bufio.NewReader(a.stdin)
		}
		pw, err = readLine(a.lines)
	case term.IsTerminal(int(os.Stdin.Fd())):
		pw, err = term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(a.stderr)
	default:
		// stdin is piped, fall back to the controlling terminal
		tty, ttyErr := os.Open("/dev/tty")
		if ttyErr != nil {
			return nil, fmt.Errorf("cannot read password: stdin is piped and /dev/tty is not available, set %s", PasswordEnvVar)
		}
		defer tty.Close()
		pw, err = term.ReadPassword(int(tty.Fd()))
		fmt.Fprintln(a.stderr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(pw) == 0 {
		return nil, encpack.NewValidationError("password", nil, "password cannot be empty")
	}
	return pw, nil
}

func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// warnWeakPassword logs a warning when zxcvbn rates pw below minPasswordScore
func (a *app) warnWeakPassword(pw []byte) {
	result := zxcvbn.PasswordStrength(string(pw), nil)
	if result.Score < minPasswordScore {
		a.logger.Warn("weak password", "score", result.Score, "crack_time", result.CrackTimeDisplay)
	}
}

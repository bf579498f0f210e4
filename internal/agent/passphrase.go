package agent

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// Test seams for term.ReadPassword and the terminal check.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// promptPassphrase reads the private key passphrase from the terminal
// without echo. It fails when stdin is not a terminal (e.g. the agent runs
// under a service manager), in which case the passphrase must come from the
// configuration instead.
func promptPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return "", errors.New("private key is encrypted and no passphrase is configured")
	}

	fmt.Fprint(os.Stderr, "Private key passphrase: ")
	pw, err := readPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

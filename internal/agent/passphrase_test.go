package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubTerminal(t *testing.T, terminal bool, pw []byte, err error) {
	t.Helper()
	origRead := readPassword
	origIsTerm := isTerminal
	t.Cleanup(func() {
		readPassword = origRead
		isTerminal = origIsTerm
	})
	isTerminal = func(fd int) bool { return terminal }
	readPassword = func(fd int) ([]byte, error) { return pw, err }
}

func TestPromptPassphrase(t *testing.T) {
	stubTerminal(t, true, []byte("s3cret"), nil)

	pw, err := promptPassphrase()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
}

func TestPromptPassphrase_NotATerminal(t *testing.T) {
	stubTerminal(t, false, nil, nil)

	_, err := promptPassphrase()
	require.Error(t, err)
}

func TestPromptPassphrase_ReadFailure(t *testing.T) {
	stubTerminal(t, true, nil, errors.New("tty closed"))

	_, err := promptPassphrase()
	require.Error(t, err)
}

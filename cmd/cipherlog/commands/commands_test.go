package commands

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cipherlog/internal/store"
)

const (
	alice     = "0x00000000000000000000000000000000000000a1"
	bob       = "0x00000000000000000000000000000000000000b2"
	storePass = "Store-Horse-42"
)

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CIPHERLOG_LOG_LEVEL", "error")
	t.Setenv(passphraseEnv, storePass)
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--home", dir, "--backend", "memory"}, args...))
	err := execute(root)
	return out.String(), err
}

func TestInitAndFingerprint(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	out, err := run(t, dir, "init", alice)
	require.NoError(err)
	require.Contains(out, "Key pair created.")
	fp := out[strings.Index(out, "Fingerprint: "):]

	out, err = run(t, dir, "init", alice, "--offline")
	require.NoError(err)
	require.Contains(out, "Key pair already present.")

	out, err = run(t, dir, "fingerprint")
	require.NoError(err)
	require.Equal(strings.TrimSpace(fp), strings.TrimSpace(out))
}

func TestCommands_NeedAccount(t *testing.T) {
	_, err := run(t, t.TempDir(), "fingerprint")
	require.ErrorContains(t, err, "no account selected")
}

func TestSendAndRead_SingleProcess(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	// The memory backend lives for one invocation, so sending to an
	// unregistered peer is the observable outcome here.
	_, err := run(t, dir, "init", alice)
	require.NoError(err)
	_, err = run(t, dir, "send", bob, "hi")
	require.ErrorContains(err, "no registered public key")

	out, err := run(t, dir, "read", bob)
	require.NoError(err)
	require.Empty(out)
}

func TestKeysExportImport(t *testing.T) {
	require := require.New(t)
	src, dst := t.TempDir(), t.TempDir()
	backup := filepath.Join(t.TempDir(), "keys.bak")

	_, err := run(t, src, "init", alice, "--offline")
	require.NoError(err)
	before, err := run(t, src, "fingerprint")
	require.NoError(err)

	_, err = run(t, src, "keys", "export", backup, "-b", "weak")
	require.Error(err)
	_, err = run(t, src, "keys", "export", backup, "-b", "Correct-Horse-42")
	require.NoError(err)

	// The destination store has its own passphrase.
	_, err = run(t, dst, "-p", "Other-Horse-42", "keys", "import", backup, "-b", "Correct-Horse-42")
	require.NoError(err)
	_, err = run(t, dst, "--as", alice, "fingerprint")
	require.ErrorIs(err, store.ErrWrongPassphrase)
	after, err := run(t, dst, "-p", "Other-Horse-42", "--as", alice, "fingerprint")
	require.NoError(err)
	require.Equal(before, after)
}

func TestKeyStore_Locked(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	_, err := run(t, dir, "init", alice, "--offline")
	require.NoError(err)

	t.Setenv(passphraseEnv, "")
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--home", dir, "--backend", "memory", "fingerprint"})
	err = execute(root)
	require.ErrorIs(err, store.ErrLocked)
	require.ErrorContains(err, passphraseEnv)

	raw, err := os.ReadFile(filepath.Join(dir, "keys", "keys.json"))
	require.NoError(err)
	require.NotContains(string(raw), "private")
}

func TestReset_NeedsConfirmation(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	_, err := run(t, dir, "init", alice, "--offline")
	require.NoError(err)

	_, err = run(t, dir, "reset")
	require.ErrorContains(err, "--yes")
	_, err = run(t, dir, "reset", "--yes")
	require.NoError(err)

	_, err = run(t, dir, "fingerprint")
	require.ErrorContains(err, "no local key pair")
}

package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command in process and returns its stdout. Logging to a file is
// disabled.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--log-file="))

	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

type testVault struct {
	vault   string
	remote  string
	journal string
	config  string
}

func newTestVault(t *testing.T) *testVault {
	t.Helper()
	dir := t.TempDir()
	tv := &testVault{
		vault:   filepath.Join(dir, "vault"),
		remote:  filepath.Join(dir, "remote"),
		journal: filepath.Join(dir, "journal", "vault.db"),
		config:  filepath.Join(dir, "missing.yaml"),
	}
	require.NoError(t, os.MkdirAll(tv.vault, 0o755))
	require.NoError(t, os.MkdirAll(tv.remote, 0o755))
	return tv
}

// remoteArgs point a command at the vault without touching the user's config.
func (tv *testVault) remoteArgs(extra ...string) []string {
	return append([]string{
		"--config", tv.config,
		"--vault", tv.vault,
		"--remote", "fs",
		"--fs-root", tv.remote,
	}, extra...)
}

func (tv *testVault) args(extra ...string) []string {
	return tv.remoteArgs(append([]string{"--journal", tv.journal}, extra...)...)
}

func (tv *testVault) write(t *testing.T, key, content string) {
	t.Helper()
	path := filepath.Join(tv.vault, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

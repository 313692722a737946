package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/hotdeploy/internal/config"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes of running
// instances and the reads of a polling test.
type syncBuffer struct {
	mu  gosync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// executeCmd runs the root command with args and returns what it printed.
func executeCmd(ctx context.Context, args ...string) (stdout, stderr *syncBuffer, err error) {
	stdout, stderr = &syncBuffer{}, &syncBuffer{}

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err = cmd.ExecuteContext(ctx)

	return stdout, stderr, err
}

// writeConfig writes a TOML config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "hotdeploy.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// --- flags ---

func TestCLIOverrides_OnlyChangedFlags(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"-s", "/src", "--recursive", "false", "-m", "0", "--watchFrom", "/src/a"}))

	cli, err := cliOverrides(cmd.Flags())
	require.NoError(t, err)

	assert.Equal(t, config.CLIOverrides{
		config.KeySource:     "/src",
		config.KeyRecursive:  "false",
		config.KeyMaxRetries: "0",
		config.KeyWatchFrom:  "/src/a",
	}, cli)
}

func TestCLIOverrides_ExplicitEmptyValueCounts(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--destSub="}))

	cli, err := cliOverrides(cmd.Flags())
	require.NoError(t, err)

	v, ok := cli[config.KeyDestSub]
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestInstanceFlags_CoverEveryKey(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	shorts := map[string]string{
		config.KeySource: "s", config.KeyJBossHome: "j", config.KeyPackagePrefix: "p",
		config.KeyLogLevel: "l", config.KeyDestSub: "z", config.KeyRecursive: "r",
		config.KeyFilter: "f", config.KeyFixedTarget: "w", config.KeyName: "n",
		config.KeyMaxRetries: "m", config.KeyRetryDelay: "d",
	}

	for key, short := range shorts {
		f := cmd.PersistentFlags().Lookup(key)
		require.NotNil(t, f, key)
		assert.Equal(t, short, f.Shorthand, key)
	}

	for _, key := range []string{config.KeyWatchFrom, config.KeyDeployMode, config.KeyReconcile} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(key), key)
	}
}

// --- config and journal paths ---

func TestLoadStore_ExplicitPathMustExist(t *testing.T) {
	t.Parallel()

	_, _, err := loadStore(&rootOptions{configPath: filepath.Join(t.TempDir(), "missing.toml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestLoadStore_ReadsSections(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[default]
maxRetries = 5

[web]
source = "/src"
fixedTarget = "/dst"
`)

	store, got, err := loadStore(&rootOptions{configPath: path})
	require.NoError(t, err)
	assert.Equal(t, path, got)
	require.Len(t, store.Instances, 1)
	assert.Equal(t, "web", store.Instances[0].Name)

	v, ok := store.Default.Get(config.KeyMaxRetries)
	assert.True(t, ok)
	assert.Equal(t, "5", v)
}

func TestLoadStore_EnvPath(t *testing.T) {
	path := writeConfig(t, "[api]\nsource = \"/src\"\n")
	t.Setenv(config.EnvConfig, path)

	store, got, err := loadStore(&rootOptions{})
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Len(t, store.Instances, 1)
}

func TestLoadStore_MissingDefaultIsEmpty(t *testing.T) {
	t.Setenv(config.EnvConfig, "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	store, _, err := loadStore(&rootOptions{})
	require.NoError(t, err)
	assert.Empty(t, store.Instances)
}

func TestResolveJournalPath(t *testing.T) {
	t.Setenv(config.EnvJournal, "/env/journal.db")

	assert.Equal(t, "/cli/journal.db", resolveJournalPath(&rootOptions{journalPath: "/cli/journal.db"}))
	assert.Equal(t, "/env/journal.db", resolveJournalPath(&rootOptions{}))
	assert.Empty(t, resolveJournalPath(&rootOptions{journalPath: "/cli/journal.db", noJournal: true}))

	t.Setenv(config.EnvJournal, "")
	assert.Equal(t, config.DefaultJournalPath(), resolveJournalPath(&rootOptions{}))
}

// --- version ---

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	stdout, _, err := executeCmd(context.Background(), "version")
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "hotdeploy "+version)
}

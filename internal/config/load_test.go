package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a debug-level logger so resolution output appears in
// verbose test runs.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func writeTestConfig(t *testing.T, name, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoadStore_TOMLSectionsInOrder(t *testing.T) {
	path := writeTestConfig(t, "hotdeploy.toml", `
[config]
jbossHome = "/opt/jboss/standalone"
maxRetries = 5

[web]
source = "/work/web/src/main/webapp"
destPackagePrefix = "web-1.0"
recursive = true

[api]
source = "/work/api/target/classes"
fixedTarget = "/srv/api"
retryDelay = 250
`)

	store, err := LoadStore(path)
	require.NoError(t, err)

	require.NotNil(t, store.Default)
	assert.Equal(t, "/opt/jboss/standalone", store.Default.Values[KeyJBossHome])
	assert.Equal(t, "5", store.Default.Values[KeyMaxRetries])

	require.Len(t, store.Instances, 2)
	assert.Equal(t, "web", store.Instances[0].Name)
	assert.Equal(t, "true", store.Instances[0].Values[KeyRecursive])
	assert.Equal(t, "api", store.Instances[1].Name)
	assert.Equal(t, "250", store.Instances[1].Values[KeyRetryDelay])
}

func TestLoadStore_TOMLTopLevelKeysAreDefaults(t *testing.T) {
	path := writeTestConfig(t, "hotdeploy.toml", `
logLevel = "debug"

[default]
maxRetries = 1

[web]
source = "/src"
`)

	store, err := LoadStore(path)
	require.NoError(t, err)

	require.NotNil(t, store.Default)
	assert.Equal(t, "debug", store.Default.Values[KeyLogLevel])
	assert.Equal(t, "1", store.Default.Values[KeyMaxRetries])
	require.Len(t, store.Instances, 1)
}

func TestLoadStore_DefaultSectionAliases(t *testing.T) {
	for _, name := range DefaultSectionNames {
		t.Run(name, func(t *testing.T) {
			path := writeTestConfig(t, "hotdeploy.toml", "["+name+"]\nfilter = \"\\\\.class$\"\n")

			store, err := LoadStore(path)
			require.NoError(t, err)
			require.NotNil(t, store.Default)
			assert.Equal(t, `\.class$`, store.Default.Values[KeyFilter])
			assert.Empty(t, store.Instances)
		})
	}
}

func TestLoadStore_YAML(t *testing.T) {
	path := writeTestConfig(t, "hotdeploy.yaml", `
logLevel: info
config:
  retryDelay: 50
web:
  source: /src/web
  fixedTarget: /dst/web
  recursive: false
api:
  source: /src/api
  fixedTarget: /dst/api
`)

	store, err := LoadStore(path)
	require.NoError(t, err)

	require.NotNil(t, store.Default)
	assert.Equal(t, "info", store.Default.Values[KeyLogLevel])
	assert.Equal(t, "50", store.Default.Values[KeyRetryDelay])

	require.Len(t, store.Instances, 2)
	assert.Equal(t, "web", store.Instances[0].Name)
	assert.Equal(t, "false", store.Instances[0].Values[KeyRecursive])
	assert.Equal(t, "api", store.Instances[1].Name)
}

func TestLoadStore_YAMLRejectsLists(t *testing.T) {
	path := writeTestConfig(t, "hotdeploy.yml", `
web:
  source: [a, b]
`)

	_, err := LoadStore(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadStore_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "hotdeploy.toml", "[web\nsource = ")

	_, err := LoadStore(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadStore_TOMLRejectsArrays(t *testing.T) {
	path := writeTestConfig(t, "hotdeploy.toml", "[web]\nsource = [\"a\"]\n")

	_, err := LoadStore(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadStoreOrEmpty_MissingFile(t *testing.T) {
	store, err := LoadStoreOrEmpty(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Nil(t, store.Default)
	assert.Empty(t, store.Instances)
}

func TestResolveConfigPath_Precedence(t *testing.T) {
	env := EnvOverrides{ConfigPath: "/env/hotdeploy.toml"}

	assert.Equal(t, "/cli/hotdeploy.toml", ResolveConfigPath(env, "/cli/hotdeploy.toml"))
	assert.Equal(t, "/env/hotdeploy.toml", ResolveConfigPath(env, ""))
	assert.NotEmpty(t, ResolveConfigPath(EnvOverrides{}, ""))
}

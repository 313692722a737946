package mirror

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/hotdeploy/internal/config"
)

// fakeBirthTimes returns a birthTime func backed by a name → time table.
func fakeBirthTimes(times map[string]time.Time) func(string) (time.Time, error) {
	return func(path string) (time.Time, error) {
		t, ok := times[filepath.Base(path)]
		if !ok {
			return time.Time{}, errors.New("no birth time")
		}

		return t, nil
	}
}

func mkdirs(t *testing.T, root string, rel ...string) {
	t.Helper()

	for _, r := range rel {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(r)), 0o755))
	}
}

func discoverSpec(home, prefix string) config.TargetSpec {
	return config.TargetSpec{Mode: config.TargetDiscover, ServerHome: home, PackagePrefix: prefix}
}

func TestResolve_Fixed(t *testing.T) {
	t.Parallel()

	r := NewTargetResolver(testLogger(t))

	got, err := r.Resolve(config.TargetSpec{Mode: config.TargetFixed, FixedDir: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, "/does/not/exist", got)
}

func TestResolve_DiscoverPicksLatest(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	mkdirs(t, home,
		"tmp/vfs/deployment/deployment123/app-1.0-SNAPSHOT",
		"tmp/vfs/deployment/deployment456/app-1.0-SNAPSHOT",
		"tmp/vfs/deployment/deployment456/other",
	)

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	r := NewTargetResolver(testLogger(t))
	r.birthTime = fakeBirthTimes(map[string]time.Time{
		"deployment123": t1,
		"deployment456": t1.Add(time.Minute),
	})

	got, err := r.Resolve(discoverSpec(home, "app-1.0"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "tmp", "vfs", "deployment", "deployment456", "app-1.0-SNAPSHOT"), got)
}

func TestResolve_DiscoverTieKeepsFirst(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	mkdirs(t, home,
		"tmp/vfs/deployment/deploymentA/app",
		"tmp/vfs/deployment/deploymentB/app",
	)

	same := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	r := NewTargetResolver(testLogger(t))
	r.birthTime = fakeBirthTimes(map[string]time.Time{"deploymentA": same, "deploymentB": same})

	for range 5 {
		got, err := r.Resolve(discoverSpec(home, "app"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "tmp", "vfs", "deployment", "deploymentA", "app"), got)
	}
}

func TestResolve_DiscoverSingleCandidateSkipsTimes(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	mkdirs(t, home, "tmp/vfs/deployment/deployment1/app-war")

	r := NewTargetResolver(testLogger(t))
	r.birthTime = func(string) (time.Time, error) {
		t.Fatal("birth time must not be read for a single candidate")
		return time.Time{}, nil
	}

	got, err := r.Resolve(discoverSpec(home, "app"))
	require.NoError(t, err)
	assert.Equal(t, "app-war", filepath.Base(got))
}

func TestResolve_DiscoverIgnoresNonMatchingEntries(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	mkdirs(t, home, "tmp/vfs/deployment/other/app", "tmp/vfs/deployment/deploymentX/app")
	writeTestFile(t, home, "tmp/vfs/deployment/deployment-file", "not a dir")

	r := NewTargetResolver(testLogger(t))

	got, err := r.Resolve(discoverSpec(home, "app"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "tmp", "vfs", "deployment", "deploymentX", "app"), got)
}

func TestResolve_DiscoverErrors(t *testing.T) {
	t.Parallel()

	t.Run("no base directory", func(t *testing.T) {
		t.Parallel()

		_, err := NewTargetResolver(testLogger(t)).Resolve(discoverSpec(t.TempDir(), "app"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDiscovery)
	})

	t.Run("no deployment directory", func(t *testing.T) {
		t.Parallel()

		home := t.TempDir()
		mkdirs(t, home, "tmp/vfs/deployment/other")

		_, err := NewTargetResolver(testLogger(t)).Resolve(discoverSpec(home, "app"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDiscovery)
	})

	t.Run("no matching package", func(t *testing.T) {
		t.Parallel()

		home := t.TempDir()
		mkdirs(t, home, "tmp/vfs/deployment/deployment1/other")

		_, err := NewTargetResolver(testLogger(t)).Resolve(discoverSpec(home, "app"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDiscovery)
		assert.Contains(t, err.Error(), "app*")
	})
}

func TestBirthTime_ReadsExistingDirectory(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Minute)

	got, err := birthTime(t.TempDir())
	require.NoError(t, err)
	assert.True(t, got.After(before), "birth time %v should be recent", got)

	_, err = birthTime(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// TargetCache
// ---------------------------------------------------------------------------

func TestTargetCache_ReResolvesWhenRootVanishes(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	mkdirs(t, home, "tmp/vfs/deployment/deployment1/app")

	r := NewTargetResolver(testLogger(t))
	cache := NewTargetCache(discoverSpec(home, "app"), r)

	first, err := cache.Get()
	require.NoError(t, err)
	assert.Contains(t, first, "deployment1")

	again, err := cache.Get()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// Redeploy: the old exploded directory goes away, a new one appears.
	require.NoError(t, os.RemoveAll(filepath.Join(home, "tmp", "vfs", "deployment", "deployment1")))
	mkdirs(t, home, "tmp/vfs/deployment/deployment2/app")

	second, err := cache.Get()
	require.NoError(t, err)
	assert.Contains(t, second, "deployment2")
}

func TestTargetCache_ErrorDoesNotPoisonCache(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	cache := NewTargetCache(discoverSpec(home, "app"), NewTargetResolver(testLogger(t)))

	_, err := cache.Get()
	require.ErrorIs(t, err, ErrDiscovery)

	mkdirs(t, home, "tmp/vfs/deployment/deployment1/app")

	got, err := cache.Get()
	require.NoError(t, err)
	assert.Equal(t, "app", filepath.Base(got))
}

package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/tonimelisma/hotdeploy/internal/config"
	"github.com/tonimelisma/hotdeploy/internal/logging"
)

// Exploded deployments live in <serverHome>/tmp/vfs/deployment/deployment*/.
const deploymentDirPrefix = "deployment"

var deploymentBase = filepath.Join("tmp", "vfs", "deployment")

// TargetResolver computes the target root for a TargetSpec. Discovery scans
// the application server's working directory; a fixed target is returned
// as configured.
type TargetResolver struct {
	logger *slog.Logger

	// birthTime reports the creation time of a directory. Defaults to the
	// platform implementation; tests override it.
	birthTime func(path string) (time.Time, error)
}

// NewTargetResolver creates a TargetResolver.
func NewTargetResolver(logger *slog.Logger) *TargetResolver {
	return &TargetResolver{
		logger:    logger,
		birthTime: birthTime,
	}
}

// Resolve returns the target root. Discovery failures wrap ErrDiscovery.
func (r *TargetResolver) Resolve(spec config.TargetSpec) (string, error) {
	if spec.Mode == config.TargetFixed {
		return spec.FixedDir, nil
	}

	return r.discover(spec.ServerHome, spec.PackagePrefix)
}

// discover picks the most recently created deployment* directory, then the
// first package directory inside it whose name starts with prefix.
func (r *TargetResolver) discover(serverHome, prefix string) (string, error) {
	base := filepath.Join(serverHome, deploymentBase)

	r.logger.Log(context.Background(), logging.LevelTrace, "searching deployment path",
		slog.String("base", base), slog.String("prefix", prefix))

	candidates, err := subdirectories(base, deploymentDirPrefix)
	if err != nil {
		return "", fmt.Errorf("%w: listing %s: %w", ErrDiscovery, base, err)
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no deployment directory in %s", ErrDiscovery, base)
	}

	picked := candidates[0]
	if len(candidates) > 1 {
		picked = r.mostRecent(base, candidates)
	}

	deployment := filepath.Join(base, picked)

	packages, err := subdirectories(deployment, prefix)
	if err != nil {
		return "", fmt.Errorf("%w: listing %s: %w", ErrDiscovery, deployment, err)
	}

	if len(packages) == 0 {
		return "", fmt.Errorf("%w: no package matching %q in %s", ErrDiscovery, prefix+"*", deployment)
	}

	found := filepath.Join(deployment, packages[0])

	r.logger.Log(context.Background(), logging.LevelTrace, "found matching package",
		slog.String("path", found), slog.Int("packages", len(packages)))

	return found, nil
}

// mostRecent returns the candidate with the strictly latest creation time.
// Equal times keep the earlier candidate, so the choice is deterministic.
// A candidate whose time cannot be read never wins over one that can.
func (r *TargetResolver) mostRecent(base string, candidates []string) string {
	best := ""

	var bestTime time.Time

	for _, name := range candidates {
		t, err := r.birthTime(filepath.Join(base, name))
		if err != nil {
			r.logger.Debug("cannot read creation time",
				slog.String("dir", name), slog.String("error", err.Error()))

			if best == "" {
				best = name
			}

			continue
		}

		r.logger.Log(context.Background(), logging.LevelTrace, "deployment folder",
			slog.String("dir", name), slog.Time("created", t))

		if best == "" || t.After(bestTime) {
			best = name
			bestTime = t
		}
	}

	r.logger.Log(context.Background(), logging.LevelTrace, "most recent deployment folder",
		slog.String("dir", best))

	return best
}

// subdirectories lists the directories of dir whose names start with
// prefix, in os.ReadDir (lexical) order. Symlinks to directories count.
func subdirectories(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}

		info, err := os.Stat(filepath.Join(dir, entry.Name()))
		if err != nil || !info.IsDir() {
			continue
		}

		names = append(names, entry.Name())
	}

	return names, nil
}

// TargetCache holds the last resolved target root. Get re-resolves when the
// cached directory has disappeared, which happens every time the
// application server redeploys into a fresh deployment directory.
type TargetCache struct {
	mu       gosync.Mutex
	spec     config.TargetSpec
	resolver *TargetResolver
	root     string
}

// NewTargetCache creates an empty cache; the first Get resolves.
func NewTargetCache(spec config.TargetSpec, resolver *TargetResolver) *TargetCache {
	return &TargetCache{spec: spec, resolver: resolver}
}

// Get returns the cached root if it still exists, resolving it otherwise.
func (c *TargetCache) Get() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.root != "" {
		_, err := os.Stat(c.root)
		if err == nil {
			return c.root, nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("mirror: stat target root %s: %w", c.root, err)
		}

		c.resolver.logger.Debug("target root vanished, resolving again", slog.String("root", c.root))
	}

	root, err := c.resolver.Resolve(c.spec)
	if err != nil {
		c.root = ""
		return "", err
	}

	if root != c.root {
		c.resolver.logger.Debug("target root resolved", slog.String("root", root))
	}

	c.root = root

	return root, nil
}

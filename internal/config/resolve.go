package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tonimelisma/hotdeploy/internal/logging"
)

// syntheticSectionName labels the instance built purely from CLI flags when
// the config file defines no instance sections.
const syntheticSectionName = "cli"

// LevelSetter receives the logLevel key. *slog.LevelVar satisfies it.
type LevelSetter interface {
	Set(slog.Level)
}

// CLIOverrides maps configuration keys to values given on the command line.
// Only flags the user explicitly set belong here; an absent key means "not
// specified" so lower layers still apply.
type CLIOverrides map[string]string

// Resolver turns store sections into Instances. It owns the counter used to
// auto-name instances, so names are unique per Resolver rather than per
// process.
type Resolver struct {
	store     *Store
	cli       CLIOverrides
	levels    LevelSetter
	logger    *slog.Logger
	autoIndex int
}

// NewResolver creates a Resolver. levels may be nil when the caller does not
// want logLevel to take effect (e.g. the validate command).
func NewResolver(store *Store, cli CLIOverrides, levels LevelSetter, logger *slog.Logger) *Resolver {
	if store == nil {
		store = NewStore()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		store:  store,
		cli:    cli,
		levels: levels,
		logger: logger,
	}
}

// SectionError reports a configuration error for one instance section.
type SectionError struct {
	Section string
	Err     error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("instance [%s]: %v", e.Section, e.Err)
}

func (e *SectionError) Unwrap() error {
	return e.Err
}

// ResolveAll resolves every instance section. A section that fails is
// reported in errs and skipped; the others are still returned, so one bad
// section never prevents the rest from starting. When the file defines no
// instance but the CLI names a source, one synthetic instance is resolved.
func (r *Resolver) ResolveAll() (instances []*Instance, errs []error) {
	sections := r.store.Instances

	if len(sections) == 0 {
		if _, ok := r.cli[KeySource]; ok {
			r.logger.Debug("no instance sections, using command-line instance")
			sections = []Section{{Name: syntheticSectionName, Values: map[string]string{}}}
		}
	}

	for i := range sections {
		section := &sections[i]

		r.logger.Debug("configuring instance", slog.String("section", section.Name))

		inst, err := r.Resolve(section)
		if err != nil {
			errs = append(errs, &SectionError{Section: section.Name, Err: err})
			continue
		}

		instances = append(instances, inst)
	}

	return instances, errs
}

// Resolve builds the Instance for one section. Every problem found is
// reported, joined, rather than only the first one.
func (r *Resolver) Resolve(section *Section) (*Instance, error) {
	var errs []error

	errs = append(errs, checkUnknownKeys(r.store.Default), checkUnknownKeys(section))

	inst := &Instance{
		Recursive:  defaultRecursive,
		DestSub:    defaultDestSub,
		MaxRetries: defaultMaxRetries,
		RetryDelay: defaultRetryDelay,
	}

	source, ok := r.lookup(section, KeySource)
	if !ok || source == "" {
		errs = append(errs, fmt.Errorf("%w: no %s in configuration", ErrConfiguration, KeySource))
	} else {
		abs, err := filepath.Abs(source)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s %q: %w", ErrConfiguration, KeySource, source, err))
		}

		inst.Source = abs
	}

	errs = append(errs, r.resolveWatchFrom(section, inst))
	errs = append(errs, r.resolveTarget(section, inst))

	if sub, ok := r.lookup(section, KeyDestSub); ok {
		inst.DestSub = sub
	}

	inst.Name = r.resolveName(section)

	if v, ok := r.lookupNonEmpty(section, KeyMaxRetries); ok {
		n, err := parseNonNegative(KeyMaxRetries, v)
		errs = append(errs, err)
		inst.MaxRetries = n
	}

	if v, ok := r.lookupNonEmpty(section, KeyRetryDelay); ok {
		ms, err := parseNonNegative(KeyRetryDelay, v)
		errs = append(errs, err)
		inst.RetryDelay = time.Duration(ms) * time.Millisecond
	}

	if v, ok := r.lookupNonEmpty(section, KeyFilter); ok {
		re, err := regexp.Compile(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: invalid %s %q: %w", ErrConfiguration, KeyFilter, v, err))
		}

		inst.Filter = re
	}

	if v, ok := r.lookup(section, KeyRecursive); ok {
		inst.Recursive = strings.EqualFold(strings.TrimSpace(v), "true")
		if !inst.Recursive {
			r.logger.Debug("single folder specified (not recursive)", slog.String("section", section.Name))
		}
	}

	if v, ok := r.lookupNonEmpty(section, KeyReconcile); ok {
		if _, err := cron.ParseStandard(v); err != nil {
			errs = append(errs, fmt.Errorf("%w: invalid %s schedule %q: %w", ErrConfiguration, KeyReconcile, v, err))
		}

		inst.Reconcile = v
	}

	level, hasLevel, err := r.parseLogLevel(section)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	// A rejected section must not touch the process-wide level.
	if hasLevel && r.levels != nil {
		r.logger.Debug("changing log level from configuration", slog.String("level", logging.LevelName(level)))
		r.levels.Set(level)
	}

	r.logResolved(section, inst)

	return inst, nil
}

// resolveTarget decides between the fixed and the discovered target.
func (r *Resolver) resolveTarget(section *Section, inst *Instance) error {
	mode := defaultDeployMode
	if v, ok := r.lookupNonEmpty(section, KeyDeployMode); ok {
		mode = strings.ToLower(strings.TrimSpace(v))
	}

	fixed, hasFixed := r.lookupNonEmpty(section, KeyFixedTarget)

	switch mode {
	case DeployModeAuto:
		if hasFixed {
			return setFixedTarget(inst, fixed)
		}
	case DeployModeFixed:
		if !hasFixed {
			return fmt.Errorf("%w: %s %q requires %s", ErrConfiguration, KeyDeployMode, mode, KeyFixedTarget)
		}

		return setFixedTarget(inst, fixed)
	case DeployModeDiscover:
	default:
		return fmt.Errorf("%w: unknown %s %q (want %s, %s or %s)", ErrConfiguration,
			KeyDeployMode, mode, DeployModeAuto, DeployModeFixed, DeployModeDiscover)
	}

	var errs []error

	home, ok := r.lookupNonEmpty(section, KeyJBossHome)
	if !ok {
		errs = append(errs, fmt.Errorf("%w: no %s and no %s in configuration", ErrConfiguration, KeyJBossHome, KeyFixedTarget))
	}

	prefix, ok := r.lookupNonEmpty(section, KeyPackagePrefix)
	if !ok {
		errs = append(errs, fmt.Errorf("%w: no %s and no %s in configuration", ErrConfiguration, KeyPackagePrefix, KeyFixedTarget))
	}

	inst.Target = TargetSpec{Mode: TargetDiscover, ServerHome: home, PackagePrefix: prefix}

	return errors.Join(errs...)
}

func setFixedTarget(inst *Instance, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%w: %s %q: %w", ErrConfiguration, KeyFixedTarget, dir, err)
	}

	inst.Target = TargetSpec{Mode: TargetFixed, FixedDir: abs}

	return nil
}

// resolveWatchFrom anchors the watch below the source root. Reflection
// stays relative to the source root, so the anchor must live inside it.
func (r *Resolver) resolveWatchFrom(section *Section, inst *Instance) error {
	inst.WatchFrom = inst.Source

	v, ok := r.lookupNonEmpty(section, KeyWatchFrom)
	if !ok || inst.Source == "" {
		return nil
	}

	abs, err := filepath.Abs(v)
	if err != nil {
		return fmt.Errorf("%w: %s %q: %w", ErrConfiguration, KeyWatchFrom, v, err)
	}

	rel, err := filepath.Rel(inst.Source, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s %q is not inside %s %q", ErrConfiguration, KeyWatchFrom, v, KeySource, inst.Source)
	}

	inst.WatchFrom = abs

	return nil
}

func (r *Resolver) resolveName(section *Section) string {
	if name, ok := r.lookupNonEmpty(section, KeyName); ok {
		return name
	}

	name := autoNamePrefix + strconv.Itoa(r.autoIndex)
	r.autoIndex++

	return name
}

func (r *Resolver) parseLogLevel(section *Section) (slog.Level, bool, error) {
	code, ok := r.lookupNonEmpty(section, KeyLogLevel)
	if !ok {
		return 0, false, nil
	}

	level, err := logging.ParseLevel(code)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return level, true, nil
}

func (r *Resolver) logResolved(section *Section, inst *Instance) {
	attrs := []any{
		slog.String("section", section.Name),
		slog.String("name", inst.Name),
		slog.String("source", inst.Source),
		slog.Bool("recursive", inst.Recursive),
	}

	if inst.Target.Mode == TargetFixed {
		attrs = append(attrs, slog.String("fixed_target", inst.Target.FixedDir))
	} else {
		attrs = append(attrs,
			slog.String("server_home", inst.Target.ServerHome),
			slog.String("package_prefix", inst.Target.PackagePrefix+"*"),
			slog.String("dest_sub", inst.DestSub),
		)
	}

	r.logger.Debug("instance configured", attrs...)
}

// lookup walks the override chain for one key: CLI, then the instance
// section, then the default section. A key present in a layer wins even
// when its value is empty.
func (r *Resolver) lookup(section *Section, key string) (string, bool) {
	if v, ok := r.cli[key]; ok {
		return v, true
	}

	if v, ok := section.Get(key); ok {
		return v, true
	}

	return r.store.Default.Get(key)
}

// lookupNonEmpty is lookup with empty values treated as absent.
func (r *Resolver) lookupNonEmpty(section *Section, key string) (string, bool) {
	v, ok := r.lookup(section, key)
	if !ok || v == "" {
		return "", false
	}

	return v, true
}

func parseNonNegative(key, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrConfiguration, key, v)
	}

	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative, got %d", ErrConfiguration, key, n)
	}

	return n, nil
}

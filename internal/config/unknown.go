package config

import (
	"errors"
	"fmt"
	"sort"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys are the keys accepted in both default and instance sections.
var knownKeys = map[string]bool{
	KeySource: true, KeyJBossHome: true, KeyPackagePrefix: true, KeyDestSub: true,
	KeyRecursive: true, KeyFilter: true, KeyLogLevel: true, KeyName: true,
	KeyFixedTarget: true, KeyWatchFrom: true, KeyMaxRetries: true,
	KeyRetryDelay: true, KeyDeployMode: true, KeyReconcile: true,
}

// knownKeysList is the sorted slice form of knownKeys. Sorted for
// deterministic suggestions when two candidates have the same edit distance.
var knownKeysList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys returns an error naming every key of the section that is
// not recognized, with a suggestion when a known key is close enough.
// Keys are reported in sorted order.
func checkUnknownKeys(section *Section) error {
	if section == nil {
		return nil
	}

	unknown := make([]string, 0)

	for key := range section.Values {
		if !knownKeys[key] {
			unknown = append(unknown, key)
		}
	}

	sort.Strings(unknown)

	errs := make([]error, 0, len(unknown))

	for _, key := range unknown {
		if suggestion := closestMatch(key, knownKeysList); suggestion != "" {
			errs = append(errs, fmt.Errorf("%w: unknown key %q in [%s], did you mean %q?",
				ErrConfiguration, key, section.Name, suggestion))

			continue
		}

		errs = append(errs, fmt.Errorf("%w: unknown key %q in [%s]", ErrConfiguration, key, section.Name))
	}

	return errors.Join(errs...)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Use single-row optimization to avoid allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}

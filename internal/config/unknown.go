package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each config section to its valid keys.
var knownKeys = map[string]map[string]bool{
	"api": {
		"base_url": true, "notify_url": true, "timeout": true, "user_agent": true,
	},
	"identity": {
		"api_key": true, "auth_base_url": true, "token_url": true,
		"oauth_client_id": true, "oauth_auth_url": true, "oauth_token_url": true,
		"oauth_scopes": true,
	},
	"storage": {
		"token_path": true, "cache_path": true,
	},
	"watch": {
		"dir": true, "settle_delay": true,
	},
	"logging": {
		"log_level": true, "log_format": true,
	},
}

// knownKeyLists holds the sorted slice form per section for Levenshtein
// matching. Sorted for deterministic suggestions when two candidates
// have the same edit distance.
var knownKeyLists = func() map[string][]string {
	out := make(map[string][]string, len(knownKeys))

	for section, keys := range knownKeys {
		list := make([]string, 0, len(keys))
		for k := range keys {
			list = append(list, k)
		}

		sort.Strings(list)
		out[section] = list
	}

	return out
}()

var knownSections = func() []string {
	out := make([]string, 0, len(knownKeys))
	for section := range knownKeys {
		out = append(out, section)
	}

	sort.Strings(out)

	return out
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		errs = append(errs, buildKeyError(key.String()))
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for an unknown key,
// suggesting the closest known section or key.
func buildKeyError(keyStr string) error {
	parts := strings.SplitN(keyStr, ".", 2)

	if len(parts) == 1 {
		suggestion := closestMatch(parts[0], knownSections)
		if suggestion != "" {
			return fmt.Errorf("unknown config section %q — did you mean [%s]?", parts[0], suggestion)
		}

		return fmt.Errorf("unknown config key %q", keyStr)
	}

	section, field := parts[0], parts[1]

	known, ok := knownKeyLists[section]
	if !ok {
		suggestion := closestMatch(section, knownSections)
		if suggestion != "" {
			return fmt.Errorf("unknown config section %q — did you mean [%s]?", section, suggestion)
		}

		return fmt.Errorf("unknown config section %q", section)
	}

	suggestion := closestMatch(field, known)
	if suggestion != "" {
		return fmt.Errorf("unknown key %q in [%s] — did you mean %q?", field, section, suggestion)
	}

	return fmt.Errorf("unknown key %q in [%s]", field, section)
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

	// Single-row optimization to avoid allocating a full matrix.
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

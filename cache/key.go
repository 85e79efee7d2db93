// Package cache maps generation requests to canonical keys and ensures
// at most one in-flight generator call per key.
package cache

import (
	"sort"
	"strings"

	"artcache/models"
	"artcache/utils"
)

const keySeparator = "|"

// normalize lower-cases, trims and collapses inner whitespace so that
// equivalent values always collide to the same key. The key syntax
// characters are replaced too - a crafted subject name must not be able
// to impersonate another key's context dimensions.
func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '|' || r == '=' {
			return ' '
		}
		return r
	}, strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

// Key builds the canonical lookup key for a request. Permanent assets key
// on (subject_type, subject_name); scene-style requests additionally fold
// in the sorted context dimensions, so field ordering and casing do not
// matter. Deterministic across process restarts.
func Key(t models.SubjectType, name string, context map[string]string) string {
	parts := []string{t.String(), normalize(name)}
	if len(context) > 0 {
		dims := make([]string, 0, len(context))
		for k, v := range context {
			v = normalize(v)
			if v == "" {
				continue
			}
			dims = append(dims, normalize(k)+"="+v)
		}
		sort.Strings(dims)
		parts = append(parts, dims...)
	}
	return strings.Join(parts, keySeparator)
}

// Fingerprint is a stable hash over the full generation parameter set,
// used to tell a variant request apart from a pure cache lookup.
func Fingerprint(prompt, style, ratio string) string {
	return utils.Sha512String(normalize(prompt) + keySeparator + normalize(style) + keySeparator + normalize(ratio))
}

// Dimensions for the supported aspect ratios. Unknown ratios fall back
// to square.
func Dimensions(ratio string) (width, height int) {
	switch normalize(ratio) {
	case "16:9":
		return 1024, 576
	case "9:16":
		return 576, 1024
	case "4:3":
		return 1024, 768
	case "3:4":
		return 768, 1024
	case "2:3":
		return 683, 1024
	case "3:2":
		return 1024, 683
	}
	return 1024, 1024
}

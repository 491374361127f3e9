// Package frontier holds the crawl state backends. Each subpackage implements
// crawler.Frontier against one store; shared helpers live here.
package frontier

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var invalidNameChars = regexp.MustCompile(`[^a-z0-9_]+`)

// Dedupe drops blank entries and repeats while keeping first-seen order.
func Dedupe(urls []string) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// NamePrefix turns a run identifier into a prefix usable in table, index and
// key names: lowercase, only [a-z0-9_], starting with a letter, ending in "_".
// When the id had to be rewritten to fit, a short digest of the original id is
// appended so that ids such as "site-a" and "site.a" keep separate names.
func NamePrefix(runID string) string {
	name := invalidNameChars.ReplaceAllString(strings.ToLower(runID), "_")
	name = strings.Trim(name, "_")
	if name == "" || name[0] < 'a' || name[0] > 'z' {
		name = strings.TrimSuffix("run_"+name, "_")
	}
	if name != runID {
		sum := sha256.Sum256([]byte(runID))
		name += "_" + hex.EncodeToString(sum[:4])
	}
	return name + "_"
}

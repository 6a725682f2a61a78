package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSecret(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}
	return path
}

func TestLoadPrefersFile(t *testing.T) {
	path := writeSecret(t, "  from-file\n")

	got, err := Load(Source{Name: "api key", Value: "inline", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("expected trimmed file secret, got %q", got)
	}
}

func TestLoadInlineValue(t *testing.T) {
	got, err := Load(Source{Value: " inline "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "inline" {
		t.Fatalf("expected inline secret, got %q", got)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeSecret(t, "\n\t ")

	_, err := Load(Source{Name: "api key", File: path, Value: "ignored"})
	if err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(Source{Name: "api key", File: filepath.Join(t.TempDir(), "absent")})
	if err == nil || !strings.Contains(err.Error(), "reading api key from file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestLoadEnvFallback(t *testing.T) {
	t.Setenv("BOOKCLUB_TEST_SECRET", " from-env ")

	got, err := Load(Source{Name: "api key", Env: "BOOKCLUB_TEST_SECRET"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-env" {
		t.Fatalf("expected env secret, got %q", got)
	}

	got, err = Load(Source{Value: "inline", Env: "BOOKCLUB_TEST_SECRET"})
	if err != nil || got != "inline" {
		t.Fatalf("inline value must win over env, got %q (%v)", got, err)
	}
}

func TestLoadNotConfigured(t *testing.T) {
	t.Setenv("BOOKCLUB_TEST_SECRET", "")

	tests := []struct {
		name string
		src  Source
		want string
	}{
		{name: "nothing set", src: Source{}, want: "secret is not configured"},
		{name: "empty env", src: Source{Name: "api key", Env: "BOOKCLUB_TEST_SECRET"}, want: "BOOKCLUB_TEST_SECRET is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.src)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

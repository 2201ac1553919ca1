package theme

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"leadchat/internal/domain"
)

func TestDefaultCatalogHasBothThemes(t *testing.T) {
	cat := Default()
	for _, th := range []domain.Theme{domain.ThemeLogic, domain.ThemeSatisfaction} {
		cp := cat.For(th)
		if cp.Greeting == "" || cp.Fallback == "" || cp.Busy == "" {
			t.Fatalf("theme %s has empty copy: %+v", th, cp)
		}
	}
}

func TestSummaryVariants(t *testing.T) {
	cp := Default().For(domain.ThemeSatisfaction)
	rec := domain.LeadRecord{Name: "Rudi", Email: "rudi@test.com", Phone: "081234567890", Need: "website toko online"}

	userEnded := cp.Summary(rec, domain.CloseReasonUserEnded)
	idle := cp.Summary(rec, domain.CloseReasonIdleTimeout)
	if userEnded == idle {
		t.Fatalf("idle summary should differ from user-ended summary")
	}
	for _, want := range []string{"Rudi", "rudi@test.com", "081234567890", "website toko online"} {
		if !strings.Contains(userEnded, want) || !strings.Contains(idle, want) {
			t.Fatalf("summary missing %q", want)
		}
	}
	if !strings.HasPrefix(idle, strings.TrimSpace(cp.SummaryIdleTimeout)) {
		t.Fatalf("idle summary should start with the idle header, got %q", idle)
	}
}

func TestLoadOverridesSingleKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copy.yaml")
	if err := os.WriteFile(path, []byte("logic:\n  greeting: \"> boot\"\n"), 0o600); err != nil {
		t.Fatalf("write override: %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cat.For(domain.ThemeLogic).Greeting; got != "> boot" {
		t.Fatalf("greeting=%q, want override", got)
	}
	if cat.For(domain.ThemeLogic).Fallback != Default().For(domain.ThemeLogic).Fallback {
		t.Fatalf("fallback should keep embedded value")
	}
}

func TestLoadRejectsUnknownTheme(t *testing.T) {
	if _, err := LoadFromBytes([]byte("dark:\n  greeting: hi\n")); err == nil {
		t.Fatalf("expected error for unknown theme")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if len(cat) != 2 {
		t.Fatalf("len=%d, want 2", len(cat))
	}
}

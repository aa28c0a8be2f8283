package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

func TestSaveCreatesCompanyDirectory(t *testing.T) {
	base := t.TempDir()
	store, err := New(base)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	path, err := store.Save(context.Background(), "BMW/BMW_2023.pdf", strings.NewReader("report"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != filepath.Join(base, "BMW", "BMW_2023.pdf") {
		t.Fatalf("unexpected path %q", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil || string(raw) != "report" {
		t.Fatalf("unexpected content %q (%v)", raw, err)
	}

	entries, _ := os.ReadDir(filepath.Join(base, "BMW"))
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, got %d entries", len(entries))
	}

	rc, err := store.Open(context.Background(), "BMW/BMW_2023.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "report" {
		t.Fatalf("unexpected read %q", got)
	}
}

func TestSaveRejectsKeysOutsideBase(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"../escape.pdf", "", "/etc/passwd"} {
		if _, err := store.Save(context.Background(), key, strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
}

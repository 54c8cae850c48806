package memory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tailored-agentic-units/specialists/memory"
)

func TestFileStore_List_EmptyDir(t *testing.T) {
	root := t.TempDir()
	store := memory.NewFileStore(root)

	keys, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("List() returned %d keys, want 0", len(keys))
	}
}

func TestFileStore_List_MissingRoot(t *testing.T) {
	store := memory.NewFileStore(filepath.Join(t.TempDir(), "nonexistent"))

	keys, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("List() returned %d keys, want 0", len(keys))
	}
}

func TestFileStore_List_SkipsQuarantineAndHidden(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "specialists/logos_a-01234567.json", "{}")
	writeTestFile(t, root, "templates/logos_a.json", "{}")
	writeTestFile(t, root, ".quarantine/specialists/bad.json", "garbage")
	writeTestFile(t, root, "specialists/.tmp-123", "partial")

	store := memory.NewFileStore(root)
	keys, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{
		"specialists/logos_a-01234567.json",
		"templates/logos_a.json",
	}
	if len(keys) != len(want) {
		t.Fatalf("List() = %v, want %v", keys, want)
	}
	for i, key := range keys {
		if key != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, key, want[i])
		}
	}
}

func TestListPrefix(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "specialists/b.json", "{}")
	writeTestFile(t, root, "specialists/a.json", "{}")
	writeTestFile(t, root, "templates/t.json", "{}")

	keys, err := memory.ListPrefix(context.Background(), memory.NewFileStore(root), memory.NamespaceSpecialists)
	if err != nil {
		t.Fatalf("ListPrefix() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "specialists/a.json" || keys[1] != "specialists/b.json" {
		t.Errorf("ListPrefix() = %v", keys)
	}
}

func TestFileStore_Load_KeyNotFound(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())

	_, err := store.Load(context.Background(), "specialists/nonexistent.json")
	if !errors.Is(err, memory.ErrKeyNotFound) {
		t.Errorf("Load() error = %v, want %v", err, memory.ErrKeyNotFound)
	}
}

func TestFileStore_Save_Overwrite(t *testing.T) {
	root := t.TempDir()
	store := memory.NewFileStore(root)
	key := memory.Key(memory.NamespaceSpecialists, "logos_a-01234567")

	if err := store.Save(context.Background(), memory.Entry{Key: key, Value: []byte("v1")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(context.Background(), memory.Entry{Key: key, Value: []byte("v2")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "specialists", "logos_a-01234567.json"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("file content = %q, want %q", string(got), "v2")
	}
}

func TestFileStore_Delete(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "templates/old.json", "content")

	store := memory.NewFileStore(root)
	if err := store.Delete(context.Background(), "templates/old.json"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "templates", "old.json")); !os.IsNotExist(err) {
		t.Error("file should not exist after Delete")
	}
	if _, err := os.Stat(filepath.Join(root, "templates")); !os.IsNotExist(err) {
		t.Error("empty parent directory should be removed after Delete")
	}
}

func TestFileStore_Delete_KeepsUncleanRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "store") + string(filepath.Separator) + "."
	writeTestFile(t, root, "templates/old.json", "content")

	store := memory.NewFileStore(root)
	if err := store.Delete(context.Background(), "templates/old.json"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(parent, "store")); err != nil {
		t.Errorf("store root removed by Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "store", "templates")); !os.IsNotExist(err) {
		t.Error("empty parent directory should be removed after Delete")
	}
}

func TestFileStore_Delete_NonExistent(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())

	if err := store.Delete(context.Background(), "nonexistent.json"); err != nil {
		t.Errorf("Delete() error = %v, want nil for missing key", err)
	}
}

func TestFileStore_Quarantine(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "specialists/bad.json", "{not json")
	writeTestFile(t, root, "specialists/good.json", "{}")

	store := memory.NewFileStore(root)
	if err := store.Quarantine(context.Background(), "specialists/bad.json"); err != nil {
		t.Fatalf("Quarantine() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, memory.QuarantineDir, "specialists", "bad.json"))
	if err != nil {
		t.Fatalf("quarantined file missing: %v", err)
	}
	if string(got) != "{not json" {
		t.Errorf("quarantined content = %q, want original bytes", string(got))
	}

	keys, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != "specialists/good.json" {
		t.Errorf("List() after quarantine = %v, want only good.json", keys)
	}
}

func TestFileStore_Quarantine_KeepsEarlierCopies(t *testing.T) {
	root := t.TempDir()
	store := memory.NewFileStore(root)

	for range 2 {
		writeTestFile(t, root, "specialists/bad.json", "garbage")
		if err := store.Quarantine(context.Background(), "specialists/bad.json"); err != nil {
			t.Fatalf("Quarantine() error = %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(root, memory.QuarantineDir, "specialists"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("quarantine holds %d files, want 2", len(entries))
	}
}

func TestFileStore_Quarantine_Missing(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())

	err := store.Quarantine(context.Background(), "specialists/none.json")
	if !errors.Is(err, memory.ErrKeyNotFound) {
		t.Errorf("Quarantine() error = %v, want ErrKeyNotFound", err)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())

	original := []memory.Entry{
		{Key: memory.Key(memory.NamespaceSpecialists, "logos_a-01234567"), Value: []byte(`{"id":"a"}`)},
		{Key: memory.Key(memory.NamespaceSpecialists, "aurora_b-89abcdef"), Value: []byte(`{"id":"b"}`)},
		{Key: memory.Key(memory.NamespaceTemplates, "logos_a"), Value: []byte(`{"id":"logos_a"}`)},
	}

	if err := store.Save(context.Background(), original...); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	keys, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	loaded, err := store.Load(context.Background(), keys...)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	got := make(map[string]string, len(loaded))
	for _, entry := range loaded {
		got[entry.Key] = string(entry.Value)
	}
	for _, entry := range original {
		if got[entry.Key] != string(entry.Value) {
			t.Errorf("key %q: value = %q, want %q", entry.Key, got[entry.Key], string(entry.Value))
		}
	}
}

func TestIDFromKey(t *testing.T) {
	key := memory.Key(memory.NamespaceSpecialists, "logos_a-01234567")
	if key != "specialists/logos_a-01234567.json" {
		t.Errorf("Key() = %q", key)
	}
	if id := memory.IDFromKey(key); id != "logos_a-01234567" {
		t.Errorf("IDFromKey() = %q", id)
	}
}

func TestNewStore(t *testing.T) {
	cfg := memory.DefaultConfig()
	cfg.Path = t.TempDir()
	if _, err := memory.NewStore(&cfg); err != nil {
		t.Fatalf("NewStore(file) error = %v", err)
	}

	cfg.Backend = "tape"
	if _, err := memory.NewStore(&cfg); !errors.Is(err, memory.ErrUnknownBackend) {
		t.Errorf("NewStore(tape) error = %v, want ErrUnknownBackend", err)
	}
}

// writeTestFile creates a file with the given content under root.
func writeTestFile(t *testing.T, root, key, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// storeContract runs the behaviour every Store implementation must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: err = %v, want ErrNotFound", err)
	}
	ok, err := s.Exists(ctx, "missing.json")
	if err != nil || ok {
		t.Fatalf("Exists missing = %v, %v; want false, nil", ok, err)
	}

	if err := s.Put(ctx, "a.json", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := s.Get(ctx, "a.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(b) != `{"a":1}` {
		t.Errorf("Get = %q", b)
	}
	if err := s.Put(ctx, "a.json", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	b, _ = s.Get(ctx, "a.json")
	if string(b) != `{"a":2}` {
		t.Errorf("Get after overwrite = %q", b)
	}

	if err := s.PutIfAbsent(ctx, "b.notified", nil); err != nil {
		t.Fatalf("PutIfAbsent: %v", err)
	}
	if err := s.PutIfAbsent(ctx, "b.notified", nil); !errors.Is(err, ErrExists) {
		t.Fatalf("PutIfAbsent twice: err = %v, want ErrExists", err)
	}
	ok, err = s.Exists(ctx, "b.notified")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
	}

	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != "a.json" || names[1] != "b.notified" {
		t.Errorf("List = %v, want [a.json b.notified]", names)
	}

	for _, bad := range []string{"", ".hidden", "../escape", "a/b"} {
		if err := s.Put(ctx, bad, nil); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Put(%q): err = %v, want ErrInvalidName", bad, err)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestFSStore(t *testing.T) {
	storeContract(t, NewFSStore(t.TempDir()))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	storeContract(t, NewRedisStore(client, "mfa:queue:"))

	if !mr.Exists("mfa:queue:a.json") {
		t.Error("expected key to carry the prefix")
	}
}

func TestFSStore_NoTempLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s := NewFSStore(dir)
	if err := s.Put(context.Background(), "x.json", []byte("{}")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "x.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want only x.json", names)
	}
}

func TestFSStore_MissingDirFailsWithoutArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")
	s := NewFSStore(dir)
	if err := s.Put(context.Background(), "x.json", []byte("{}")); err == nil {
		t.Fatal("Put into a missing directory should fail")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("store must not create its directory, stat err = %v", err)
	}
}

func TestFSStore_ListSkipsTempAndDirs(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".x.json.123.tmp"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o700); err != nil {
		t.Fatal(err)
	}
	names, err := NewFSStore(dir).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List = %v, want empty", names)
	}
}

package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/botpanel/botpanel/internal/config"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"activo", StatusActive},
		{"inactivo", StatusInactive},
		{"", StatusInactive},
		{"ACTIVO", StatusInactive},
		{"activo ", StatusInactive},
	}
	for _, tt := range tests {
		if got := ParseStatus(tt.raw); got != tt.want {
			t.Errorf("ParseStatus(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestObserveFiresOncePerActivation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := New(ctx, store, "alertShown")

	if !s.Observe(ctx, StatusActive) {
		t.Error("first active observation should fire")
	}
	if s.Observe(ctx, StatusActive) {
		t.Error("second consecutive active observation should not fire")
	}
	if s.Observe(ctx, StatusInactive) {
		t.Error("inactive observation should never fire")
	}
	if s.ActivationNotified() {
		t.Error("inactive observation should clear the flag")
	}
	if !s.Observe(ctx, StatusActive) {
		t.Error("active observation after a reset should fire again")
	}

	v, ok, _ := store.Get(ctx, "alertShown")
	if !ok || v != "true" {
		t.Errorf("expected stored value \"true\", got %q (present=%v)", v, ok)
	}
}

func TestObserveInactiveAlwaysClears(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Set(ctx, "alertShown", "true")

	s := New(ctx, store, "alertShown")
	if !s.ActivationNotified() {
		t.Fatal("expected flag loaded as true")
	}

	s.Observe(ctx, StatusInactive)
	v, _, _ := store.Get(ctx, "alertShown")
	if v != "false" {
		t.Errorf("expected stored value \"false\", got %q", v)
	}
}

func TestObserveRespectsPersistedFlag(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Set(ctx, "alertShown", "true")

	s := New(ctx, store, "alertShown")
	if s.Observe(ctx, StatusActive) {
		t.Error("flag persisted as true should suppress the notification")
	}
}

func TestObserveSeesSharedStoreWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := New(ctx, store, "alertShown")
	b := New(ctx, store, "alertShown")

	if !a.Observe(ctx, StatusActive) {
		t.Fatal("replica a should fire")
	}
	if b.Observe(ctx, StatusActive) {
		t.Error("replica b should see a's write and stay quiet")
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("boom")
}
func (failingStore) Set(context.Context, string, string) error { return errors.New("boom") }
func (failingStore) Close() error                              { return nil }

func TestObserveStoreFailuresAreNotFatal(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, failingStore{}, "alertShown")

	if !s.Observe(ctx, StatusActive) {
		t.Error("should fire from the cached flag when the store is down")
	}
	if s.Observe(ctx, StatusActive) {
		t.Error("cached flag should suppress the repeat")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.yaml")

	fs, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if _, ok, _ := fs.Get(ctx, "alertShown"); ok {
		t.Error("fresh store should be empty")
	}
	if err := fs.Set(ctx, "alertShown", "true"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	v, ok, _ := reopened.Get(ctx, "alertShown")
	if !ok || v != "true" {
		t.Errorf("expected persisted \"true\", got %q (present=%v)", v, ok)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	os.WriteFile(path, []byte("- not\n- a mapping\n"), 0644)

	if _, err := NewFileStore(path); err == nil {
		t.Error("expected parse error for corrupt state file")
	}
}

func TestFileStoreRetriesAfterFailedWrite(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	path := filepath.Join(dir, "state.yaml")

	fs, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := fs.Set(ctx, "alertShown", "true"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	os.RemoveAll(dir)
	if err := fs.Set(ctx, "alertShown", "false"); err == nil {
		t.Fatal("expected Set to fail without its directory")
	}

	// The directory comes back with the old value still on disk.
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	os.WriteFile(path, []byte("alertShown: \"true\"\n"), 0644)

	if err := fs.Set(ctx, "alertShown", "false"); err != nil {
		t.Fatalf("retried Set failed: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if v, _, _ := reopened.Get(ctx, "alertShown"); v != "false" {
		t.Errorf("expected \"false\" on disk after retry, got %q", v)
	}
}

func TestFileStoreSharedBetweenSessions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.yaml")

	storeA, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	storeB, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	a := New(ctx, storeA, "alertShown")
	b := New(ctx, storeB, "alertShown")

	if !a.Observe(ctx, StatusActive) {
		t.Fatal("first session should fire")
	}
	if b.Observe(ctx, StatusActive) {
		t.Error("second session should read the flag from the shared file")
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	st, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer st.Close()

	if _, ok, err := st.Get(ctx, "alertShown"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	st.Set(ctx, "alertShown", "true")
	st.Set(ctx, "alertShown", "false")

	v, ok, err := st.Get(ctx, "alertShown")
	if err != nil || !ok || v != "false" {
		t.Errorf("expected \"false\", got %q ok=%v err=%v", v, ok, err)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("BOTPANEL_TEST_REDIS")
	if addr == "" {
		t.Skip("BOTPANEL_TEST_REDIS not set")
	}
	ctx := context.Background()

	st, err := NewRedisStore(addr, "", 0)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer st.Close()

	key := "test-" + t.Name()
	if err := st.Set(ctx, key, "true"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, err := st.Get(ctx, key)
	if err != nil || !ok || v != "true" {
		t.Errorf("expected \"true\", got %q ok=%v err=%v", v, ok, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(config.StoreConfig{Driver: "etcd"})
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestOpenMemory(t *testing.T) {
	st, err := Open(config.StoreConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := st.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", st)
	}
}

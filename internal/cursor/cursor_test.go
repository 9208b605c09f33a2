package cursor

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cursor.db")
	st, err := OpenBolt(path, "messages")
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestBolt_Load_FirstRun(t *testing.T) {
	st := openTestStore(t)

	tok, ok, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Errorf("Load on fresh store: got ok=true, tok=%q", tok)
	}
}

func TestBolt_SaveThenLoad(t *testing.T) {
	st := openTestStore(t)

	if err := st.Save(Token("pos-42")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tok, ok, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok || !bytes.Equal(tok, []byte("pos-42")) {
		t.Errorf("Load: got ok=%v tok=%q, want pos-42", ok, tok)
	}
}

func TestBolt_Save_Overwrites(t *testing.T) {
	st := openTestStore(t)

	st.Save(Token("pos-1")) //nolint:errcheck
	st.Save(Token("pos-2")) //nolint:errcheck

	tok, _, _ := st.Load()
	if !bytes.Equal(tok, []byte("pos-2")) {
		t.Errorf("Load: got %q, want pos-2", tok)
	}
}

func TestBolt_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.db")

	st, err := OpenBolt(path, "messages")
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	if err := st.Save(Token("pos-7")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	st.Close()

	st2, err := OpenBolt(path, "messages")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	tok, ok, err := st2.Load()
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if !ok || !bytes.Equal(tok, []byte("pos-7")) {
		t.Errorf("Load after reopen: got ok=%v tok=%q, want pos-7", ok, tok)
	}
}

func TestBolt_FeedsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.db")

	a, err := OpenBolt(path, "feed-a")
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	if err := a.Save(Token("a-pos")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	b, err := OpenBolt(path, "feed-b")
	if err != nil {
		t.Fatalf("OpenBolt feed-b: %v", err)
	}
	defer b.Close()

	_, ok, err := b.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("feed-b saw feed-a's token")
	}
}

func TestBolt_Clear(t *testing.T) {
	st := openTestStore(t)

	st.Save(Token("pos")) //nolint:errcheck
	if err := st.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	_, ok, _ := st.Load()
	if ok {
		t.Error("Load after Clear: got ok=true, want false")
	}
}

func TestMemory_RoundTrip(t *testing.T) {
	st := NewMemory()

	if _, ok, _ := st.Load(); ok {
		t.Fatal("fresh MemoryStore: got ok=true")
	}
	st.Save(Token("m1")) //nolint:errcheck
	tok, ok, _ := st.Load()
	if !ok || !bytes.Equal(tok, []byte("m1")) {
		t.Errorf("Load: got ok=%v tok=%q, want m1", ok, tok)
	}
	st.Clear() //nolint:errcheck
	if _, ok, _ := st.Load(); ok {
		t.Error("Load after Clear: got ok=true")
	}
}

package store

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *BytecodeStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	in := Program{
		Name:        "gradient",
		Version:     "1.0.0",
		RunID:       "run-1",
		Buffer:      []byte{0, 1, 2, 3},
		OpsChecksum: "abcd1234",
		ExportLen:   2,
		NExports:    1,
		NGlobals:    3,
		NStates:     1,
		MaxStack:    4,
		MaxEnv:      2,
		EmittedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := s.Put(in); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	out, ok, err := s.Get("gradient", "1.0.0")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok {
		t.Fatal("Get reported the program missing after Put")
	}
	if !bytes.Equal(out.Buffer, in.Buffer) {
		t.Fatalf("Buffer = %v, want %v", out.Buffer, in.Buffer)
	}
	if out.RunID != in.RunID || out.OpsChecksum != in.OpsChecksum {
		t.Fatalf("identity columns = (%q, %q), want (%q, %q)", out.RunID, out.OpsChecksum, in.RunID, in.OpsChecksum)
	}
	if out.ExportLen != 2 || out.NExports != 1 || out.NGlobals != 3 || out.NStates != 1 || out.MaxStack != 4 || out.MaxEnv != 2 {
		t.Fatalf("preamble columns mis-stored: %+v", out)
	}
}

func TestPutReplacesSameNameVersion(t *testing.T) {
	s := openTestStore(t)

	base := Program{Name: "p", Version: "dev", RunID: "a", Buffer: []byte{1}, EmittedAt: time.Now()}
	if err := s.Put(base); err != nil {
		t.Fatalf("first Put error: %v", err)
	}
	base.RunID = "b"
	base.Buffer = []byte{2, 3}
	if err := s.Put(base); err != nil {
		t.Fatalf("second Put error: %v", err)
	}

	out, ok, err := s.Get("p", "dev")
	if err != nil || !ok {
		t.Fatalf("Get = (%v, %v), want the replaced row", ok, err)
	}
	if out.RunID != "b" || !bytes.Equal(out.Buffer, []byte{2, 3}) {
		t.Fatalf("row not replaced: %+v", out)
	}
}

func TestGetMissingIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Get("nope", "0")
	if err != nil {
		t.Fatalf("Get on a missing row errored: %v", err)
	}
	if ok {
		t.Fatal("Get reported a missing row as present")
	}
}

func TestVersionsMostRecentFirst(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	for i, v := range []string{"1.0.0", "1.1.0", "2.0.0"} {
		p := Program{Name: "p", Version: v, RunID: v, Buffer: []byte{byte(i)},
			EmittedAt: now.Add(time.Duration(i) * time.Minute)}
		if err := s.Put(p); err != nil {
			t.Fatalf("Put %s error: %v", v, err)
		}
	}

	got, err := s.Versions("p")
	if err != nil {
		t.Fatalf("Versions error: %v", err)
	}
	want := []string{"2.0.0", "1.1.0", "1.0.0"}
	if len(got) != len(want) {
		t.Fatalf("Versions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Versions = %v, want %v", got, want)
		}
	}
}

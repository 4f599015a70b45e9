package kv

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"syscall"
	"testing"
)

func TestMemoryStore_ReadWriteRemove(t *testing.T) {
	s := NewMemoryStore()

	if _, ok := s.Read("missing"); ok {
		t.Fatalf("Read(missing) ok = true, want false")
	}

	if err := s.Write("a", "1"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	v, ok := s.Read("a")
	if !ok || v != "1" {
		t.Fatalf("Read(a) = (%q, %v), want (%q, true)", v, ok, "1")
	}

	s.Remove("a")
	if _, ok := s.Read("a"); ok {
		t.Fatalf("Read(a) after Remove ok = true, want false")
	}

	// Removing a missing key must not panic or error.
	s.Remove("a")
}

func TestMemoryStore_QuotaExceeded(t *testing.T) {
	s := NewMemoryStoreWithQuota(10)

	if err := s.Write("k", "12345"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	err := s.Write("q", "123456789")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Write() error = %v, want ErrQuotaExceeded", err)
	}

	// Overwriting an existing key frees its old size first.
	if err := s.Write("k", "123"); err != nil {
		t.Fatalf("Write() overwrite error = %v", err)
	}
}

func TestMemoryStore_Keys(t *testing.T) {
	s := NewMemoryStore()
	for _, k := range []string{"sess_a", "sess_b", "index"} {
		if err := s.Write(k, "x"); err != nil {
			t.Fatalf("Write(%q) error = %v", k, err)
		}
	}

	keys := s.Keys("sess_")
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "sess_a" || keys[1] != "sess_b" {
		t.Fatalf("Keys(sess_) = %v, want [sess_a sess_b]", keys)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	key := "tutor_session_go-101_ch/3" // slash must be escaped on disk
	if err := s.Write(key, `{"id":"x"}`); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	v, ok := s.Read(key)
	if !ok || v != `{"id":"x"}` {
		t.Fatalf("Read() = (%q, %v), want payload back", v, ok)
	}

	keys := s.Keys("tutor_session_")
	if len(keys) != 1 || keys[0] != key {
		t.Fatalf("Keys() = %v, want [%s]", keys, key)
	}

	s.Remove(key)
	if _, ok := s.Read(key); ok {
		t.Fatalf("Read() after Remove ok = true, want false")
	}
}

func TestFileStore_ReadMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if _, ok := s.Read("nothing"); ok {
		t.Fatalf("Read(nothing) ok = true, want false")
	}
}

func TestFileStore_WriteErrorMapping(t *testing.T) {
	// A full disk surfaces as ENOSPC wrapped in a *PathError.
	enospc := &os.PathError{Op: "write", Path: "x.json", Err: syscall.ENOSPC}
	if got := mapWriteError(enospc); !errors.Is(got, ErrQuotaExceeded) {
		t.Fatalf("mapWriteError(ENOSPC) = %v, want ErrQuotaExceeded", got)
	}

	// Anything else passes through untouched.
	plain := fmt.Errorf("permission denied")
	if got := mapWriteError(plain); got != plain {
		t.Fatalf("mapWriteError(other) = %v, want the original error", got)
	}
}

func TestFilenameEncoding_Bijective(t *testing.T) {
	cases := []string{
		"plain",
		"with_underscore",
		"per%cent",
		"sp ace",
		"uniécode",
		"tutor_session_course_chapter",
	}
	for _, key := range cases {
		name := encodeFilename(key)
		got, ok := decodeFilename(name)
		if !ok || got != key {
			t.Fatalf("decode(encode(%q)) = (%q, %v), want original", key, got, ok)
		}
	}
}

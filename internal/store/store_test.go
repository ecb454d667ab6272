package store_test

import (
	"testing"

	"opendax/internal/store"
	"opendax/internal/types"
)

func newTestStore(t *testing.T) (*store.Store, *types.Registry) {
	t.Helper()
	reg := types.NewRegistry()
	return store.New(reg, 16, 32), reg
}

func TestAddResolveRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.Add("TEST1", types.UINT, 1, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}

	h, err := s.ResolveHandle("TEST1", 1)
	if err != nil {
		t.Fatalf("ResolveHandle: %v", err)
	}
	if h.SizeBytes != 2 {
		t.Errorf("size = %d, want 2", h.SizeBytes)
	}
}

func TestAddDuplicateSameShapeReturnsSameIndex(t *testing.T) {
	s, _ := newTestStore(t)

	idx1, err := s.Add("dup", types.INT, 4, 0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	idx2, err := s.Add("dup", types.INT, 4, 0)
	if err != nil {
		t.Fatalf("Add (duplicate): %v", err)
	}
	if idx1 != idx2 {
		t.Errorf("duplicate add returned different index: %d != %d", idx1, idx2)
	}
}

func TestAddConflictingDuplicateFails(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.Add("dup", types.INT, 4, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add("dup", types.INT, 8, 0); err == nil {
		t.Fatalf("expected ALREADY_EXISTS for conflicting re-add")
	}
}

func TestInvalidNamesRejected(t *testing.T) {
	s, _ := newTestStore(t)

	cases := []string{"", "1abc", "bad-name", "with space"}
	for _, name := range cases {
		if _, err := s.Add(name, types.BOOL, 1, 0); err == nil {
			t.Errorf("expected error adding invalid name %q", name)
		}
	}

	if _, err := s.Add("TEST1", types.BOOL, 1, 0); err != nil {
		t.Errorf("valid name TEST1 rejected: %v", err)
	}
}

func TestDeleteTombstonesIndexPermanently(t *testing.T) {
	s, _ := newTestStore(t)

	idx, err := s.Add("gone", types.UINT, 1, 0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Delete(idx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.ByIndex(idx); err == nil {
		t.Fatalf("expected NOT_FOUND after delete")
	}

	// Adding four other distinct tags must not resurrect the deleted index.
	for i := 0; i < 4; i++ {
		if _, err := s.Add(string(rune('a'+i))+"tag", types.UINT, 1, 0); err != nil {
			t.Fatalf("Add filler tag: %v", err)
		}
	}
	if _, err := s.ByIndex(idx); err == nil {
		t.Fatalf("deleted index must never be reused")
	}
}

func TestSpecialTagsCannotBeDeleted(t *testing.T) {
	s, _ := newTestStore(t)

	meta, err := s.ByName("_lastindex")
	if err != nil {
		t.Fatalf("_lastindex should exist: %v", err)
	}
	if err := s.Delete(meta.Index); err == nil {
		t.Fatalf("expected error deleting a SPECIAL tag")
	}
}

func TestResolveHandleEmptyNameNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 4; i++ {
		if _, err := s.Add(string(rune('a'+i))+"tag", types.UINT, 1, 0); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if _, err := s.Add("TEST1", types.UINT, 1, 0); err != nil {
		t.Fatalf("Add TEST1: %v", err)
	}

	if _, err := s.ResolveHandle("", 1); err == nil {
		t.Fatalf("expected NOT_FOUND for empty path")
	}
	if _, err := s.ResolveHandle("TEST1", 1); err != nil {
		t.Fatalf("ResolveHandle(TEST1): %v", err)
	}
}

func TestResolveHandleCDTMember(t *testing.T) {
	reg := types.NewRegistry()
	point, err := reg.RegisterCDT("Point", []types.Member{
		{Name: "x", Type: types.LREAL, Count: 1},
		{Name: "y", Type: types.LREAL, Count: 1},
		{Name: "z", Type: types.LREAL, Count: 1},
	})
	if err != nil {
		t.Fatalf("RegisterCDT: %v", err)
	}

	s := store.New(reg, 16, 32)
	if _, err := s.Add("p", point, 1, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}

	h, err := s.ResolveHandle("p[0].y", 1)
	if err != nil {
		t.Fatalf("ResolveHandle(p[0].y): %v", err)
	}
	if h.ByteOffset != 8 {
		t.Errorf("y byte offset = %d, want 8", h.ByteOffset)
	}
	if h.SizeBytes != 8 {
		t.Errorf("y size = %d, want 8", h.SizeBytes)
	}
}

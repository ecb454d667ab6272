package types_test

import (
	"testing"

	"opendax/internal/types"
)

func TestPrimitiveSizes(t *testing.T) {
	tests := []struct {
		name string
		id   types.ID
		bits uint
	}{
		{"BOOL", types.BOOL, 1},
		{"BYTE", types.BYTE, 8},
		{"WORD", types.WORD, 16},
		{"DWORD", types.DWORD, 32},
		{"REAL", types.REAL, 32},
		{"LWORD", types.LWORD, 64},
		{"TIME", types.TIME, 64},
	}

	r := types.NewRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.SizeBits(tt.id); got != tt.bits {
				t.Errorf("SizeBits(%s) = %d, want %d", tt.name, got, tt.bits)
			}
			if types.IsCustom(tt.id) {
				t.Errorf("%s should not be custom", tt.name)
			}
		})
	}
}

func TestRegisterCDT_PointLayout(t *testing.T) {
	r := types.NewRegistry()

	id, err := r.RegisterCDT("Point", []types.Member{
		{Name: "x", Type: types.LREAL, Count: 1},
		{Name: "y", Type: types.LREAL, Count: 1},
		{Name: "z", Type: types.LREAL, Count: 1},
	})
	if err != nil {
		t.Fatalf("RegisterCDT: %v", err)
	}
	if !types.IsCustom(id) {
		t.Fatalf("Point should be custom, got %d", id)
	}
	if got := r.SizeBytes(id); got != 24 {
		t.Errorf("Point size = %d bytes, want 24", got)
	}

	_, yOffset, ok := r.Member(id, "y")
	if !ok {
		t.Fatalf("expected member y")
	}
	if yOffset != 64 {
		t.Errorf("y bit offset = %d, want 64", yOffset)
	}
}

func TestRegisterCDT_BoolPackingNoPadding(t *testing.T) {
	r := types.NewRegistry()

	id, err := r.RegisterCDT("Flags", []types.Member{
		{Name: "a", Type: types.BOOL, Count: 1},
		{Name: "b", Type: types.BOOL, Count: 1},
		{Name: "c", Type: types.BOOL, Count: 1},
	})
	if err != nil {
		t.Fatalf("RegisterCDT: %v", err)
	}
	if got := r.SizeBits(id); got != 3 {
		t.Errorf("Flags size = %d bits, want 3", got)
	}
	if got := r.SizeBytes(id); got != 1 {
		t.Errorf("Flags size = %d bytes, want 1", got)
	}
}

func TestRegisterCDT_DuplicateName(t *testing.T) {
	r := types.NewRegistry()
	members := []types.Member{{Name: "x", Type: types.INT, Count: 1}}

	if _, err := r.RegisterCDT("Dup", members); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := r.RegisterCDT("Dup", members); err == nil {
		t.Fatalf("expected error re-registering Dup")
	}
}

func TestRegisterCDT_UnknownMemberType(t *testing.T) {
	r := types.NewRegistry()
	_, err := r.RegisterCDT("Bad", []types.Member{
		{Name: "x", Type: types.ID(9999), Count: 1},
	})
	if err == nil {
		t.Fatalf("expected error for unknown member type")
	}
}

func TestRegisterCDT_NestedNonCyclicAccepted(t *testing.T) {
	r := types.NewRegistry()

	inner, err := r.RegisterCDT("Inner", []types.Member{
		{Name: "v", Type: types.INT, Count: 1},
	})
	if err != nil {
		t.Fatalf("RegisterCDT Inner: %v", err)
	}

	outer, err := r.RegisterCDT("Outer", []types.Member{
		{Name: "inner", Type: inner, Count: 1},
	})
	if err != nil {
		t.Fatalf("RegisterCDT Outer: %v", err)
	}

	// Members must already exist to be referenced, so a self-referencing
	// type cannot be built here. What this checks is that the cycle check
	// accepts a legitimate nesting in which Inner is reachable twice.
	_, err = r.RegisterCDT("Outer2", []types.Member{
		{Name: "a", Type: outer, Count: 1},
		{Name: "b", Type: inner, Count: 1},
	})
	if err != nil {
		t.Fatalf("legitimate nested (non-cyclic) CDT rejected: %v", err)
	}
}

func TestReservedTypesRegisteredAtBoot(t *testing.T) {
	r := types.NewRegistry()

	id, ok := r.ByName("_tag_desc")
	if !ok {
		t.Fatalf("_tag_desc should be registered at boot")
	}
	if got := r.SizeBytes(id); got != 47 {
		t.Errorf("_tag_desc size = %d bytes, want 47", got)
	}

	if _, ok := r.ByName("_event_desc"); !ok {
		t.Fatalf("_event_desc should be registered at boot")
	}
}

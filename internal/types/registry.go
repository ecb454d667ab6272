// Package types implements the OpenDAX type registry: the built-in
// primitive type table and the compound data type (CDT) registry used to
// compute tag sizes and member offsets.
//
// A type identifier is a 32-bit value. Bit 31 (CustomTypeBit) marks the
// identifier as custom; when set, the remaining bits are an index into the
// registry's CDT table. When clear, the low bits name one of the built-in
// primitives.
package types

import (
	"fmt"
	"sync"

	"opendax/internal/daxerr"
)

// ID identifies a primitive or custom type.
type ID uint32

// CustomTypeBit marks ID as an index into the custom type table rather
// than a built-in primitive tag.
const CustomTypeBit ID = 1 << 31

// Built-in primitive type tags (low bits, CustomTypeBit clear).
const (
	BOOL ID = iota + 1
	BYTE
	SINT
	CHAR
	WORD
	UINT
	INT
	DWORD
	UDINT
	DINT
	REAL
	LWORD
	ULINT
	LINT
	LREAL
	TIME
)

// primitiveBits is the bit width of each built-in primitive.
var primitiveBits = map[ID]uint{
	BOOL:  1,
	BYTE:  8,
	SINT:  8,
	CHAR:  8,
	WORD:  16,
	UINT:  16,
	INT:   16,
	DWORD: 32,
	UDINT: 32,
	DINT:  32,
	REAL:  32,
	LWORD: 64,
	ULINT: 64,
	LINT:  64,
	LREAL: 64,
	TIME:  64,
}

var primitiveNames = map[ID]string{
	BOOL: "BOOL", BYTE: "BYTE", SINT: "SINT", CHAR: "CHAR",
	WORD: "WORD", UINT: "UINT", INT: "INT", DWORD: "DWORD",
	UDINT: "UDINT", DINT: "DINT", REAL: "REAL", LWORD: "LWORD",
	ULINT: "ULINT", LINT: "LINT", LREAL: "LREAL", TIME: "TIME",
}

// IsCustom reports whether id names a registered CDT rather than a
// built-in primitive.
func IsCustom(id ID) bool {
	return id&CustomTypeBit != 0
}

// Member is one field of a compound data type: a name, a type, and an
// element count (count > 1 makes the member an array).
type Member struct {
	Name  string
	Type  ID
	Count uint
}

// cdt is a registered compound data type: an ordered member list plus the
// memoized per-member bit offset and total size computed at registration.
type cdt struct {
	name         string
	members      []Member
	memberOffset []uint // bit offset of each member, parallel to members
	sizeBits     uint
}

// Registry holds the built-in primitive table and all registered CDTs.
//
// Reads (size/offset/name lookups) vastly outnumber writes (registration),
// so a single sync.RWMutex guards the CDT table - the same shape as the
// tag store's structural lock, just scoped to types instead of tags.
type Registry struct {
	mu   sync.RWMutex
	cdts []*cdt
	byName map[string]ID
}

// NewRegistry creates a Registry with the two reserved structured-payload
// types pre-registered: _tag_desc (tag add/delete notifications) and
// _event_desc (an event id, kind and elapsed-since-last-fire layout; EVENT
// notifications sent by internal/server do not carry it).
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]ID)}

	mustRegister(r, "_tag_desc", []Member{
		{Name: "index", Type: UDINT, Count: 1},
		{Name: "type", Type: UDINT, Count: 1},
		{Name: "count", Type: UDINT, Count: 1},
		{Name: "attributes", Type: UINT, Count: 1},
		{Name: "name", Type: CHAR, Count: 33},
	})
	mustRegister(r, "_event_desc", []Member{
		{Name: "event_id", Type: UDINT, Count: 1},
		{Name: "kind", Type: UINT, Count: 1},
		{Name: "since_last_fire_ms", Type: ULINT, Count: 1},
	})

	return r
}

func mustRegister(r *Registry, name string, members []Member) {
	if _, err := r.RegisterCDT(name, members); err != nil {
		panic(fmt.Sprintf("types: failed to register reserved CDT %q: %v", name, err))
	}
}

// RegisterCDT validates and registers a new compound data type, returning
// its type ID. Validation rejects name collisions, unknown member types,
// and cycles (a CDT that transitively references itself).
func (r *Registry) RegisterCDT(name string, members []Member) (ID, error) {
	if name == "" {
		return 0, daxerr.New(daxerr.BadArg, "cdt name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return 0, daxerr.New(daxerr.AlreadyExists, fmt.Sprintf("type %q already registered", name))
	}

	for _, m := range members {
		if m.Count == 0 {
			return 0, daxerr.New(daxerr.BadArg, fmt.Sprintf("member %q has zero count", m.Name))
		}
		if !r.typeExistsLocked(m.Type) {
			return 0, daxerr.New(daxerr.BadArg, fmt.Sprintf("member %q references unknown type %d", m.Name, m.Type))
		}
	}

	if err := r.detectCycleLocked(name, members); err != nil {
		return 0, err
	}

	offsets := make([]uint, len(members))
	var bits uint
	for i, m := range members {
		offsets[i] = bits
		bits += r.sizeBitsLocked(m.Type) * m.Count
	}

	c := &cdt{name: name, members: members, memberOffset: offsets, sizeBits: bits}
	r.cdts = append(r.cdts, c)
	id := ID(len(r.cdts)-1) | CustomTypeBit
	r.byName[name] = id
	return id, nil
}

func (r *Registry) typeExistsLocked(id ID) bool {
	if !IsCustom(id) {
		_, ok := primitiveBits[id]
		return ok
	}
	idx := int(id &^ CustomTypeBit)
	return idx >= 0 && idx < len(r.cdts)
}

// detectCycleLocked walks the member graph of a not-yet-registered CDT
// (identified by name, since it has no ID yet) via DFS, rejecting any path
// that returns to name.
func (r *Registry) detectCycleLocked(name string, members []Member) error {
	visiting := map[string]bool{name: true}
	var walk func(ms []Member) error
	walk = func(ms []Member) error {
		for _, m := range ms {
			if !IsCustom(m.Type) {
				continue
			}
			idx := int(m.Type &^ CustomTypeBit)
			if idx < 0 || idx >= len(r.cdts) {
				continue
			}
			child := r.cdts[idx]
			if visiting[child.name] {
				return daxerr.New(daxerr.BadArg, fmt.Sprintf("cycle detected: %q references itself via %q", name, child.name))
			}
			visiting[child.name] = true
			if err := walk(child.members); err != nil {
				return err
			}
			delete(visiting, child.name)
		}
		return nil
	}
	return walk(members)
}

// SizeBits returns the bit width of id: a fixed constant for primitives,
// or the memoized total for a CDT.
func (r *Registry) SizeBits(id ID) uint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sizeBitsLocked(id)
}

func (r *Registry) sizeBitsLocked(id ID) uint {
	if !IsCustom(id) {
		return primitiveBits[id]
	}
	idx := int(id &^ CustomTypeBit)
	if idx < 0 || idx >= len(r.cdts) {
		return 0
	}
	return r.cdts[idx].sizeBits
}

// SizeBytes returns ceil(SizeBits(id) / 8).
func (r *Registry) SizeBytes(id ID) uint {
	bits := r.SizeBits(id)
	return (bits + 7) / 8
}

// MemberCount returns the number of members in a CDT, or 0 for a
// primitive type.
func (r *Registry) MemberCount(id ID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !IsCustom(id) {
		return 0
	}
	idx := int(id &^ CustomTypeBit)
	if idx < 0 || idx >= len(r.cdts) {
		return 0
	}
	return len(r.cdts[idx].members)
}

// IterMembers calls visit for each member of the CDT named by id, passing
// the member's declared offset in bits from the start of the CDT. It is a
// no-op for primitive types.
func (r *Registry) IterMembers(id ID, visit func(m Member, bitOffset uint)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !IsCustom(id) {
		return
	}
	idx := int(id &^ CustomTypeBit)
	if idx < 0 || idx >= len(r.cdts) {
		return
	}
	c := r.cdts[idx]
	for i, m := range c.members {
		visit(m, c.memberOffset[i])
	}
}

// Member looks up a named member of the CDT named by id. ok is false if id
// isn't a CDT or has no such member.
func (r *Registry) Member(id ID, name string) (m Member, bitOffset uint, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !IsCustom(id) {
		return Member{}, 0, false
	}
	idx := int(id &^ CustomTypeBit)
	if idx < 0 || idx >= len(r.cdts) {
		return Member{}, 0, false
	}
	c := r.cdts[idx]
	for i, mm := range c.members {
		if mm.Name == name {
			return mm, c.memberOffset[i], true
		}
	}
	return Member{}, 0, false
}

// NameOf returns the human-readable name of id: the primitive's constant
// name, or the registered CDT name.
func (r *Registry) NameOf(id ID) string {
	if !IsCustom(id) {
		if n, ok := primitiveNames[id]; ok {
			return n
		}
		return fmt.Sprintf("UNKNOWN(%d)", id)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := int(id &^ CustomTypeBit)
	if idx < 0 || idx >= len(r.cdts) {
		return fmt.Sprintf("UNKNOWN_CUSTOM(%d)", idx)
	}
	return r.cdts[idx].name
}

// ByName resolves a previously registered type (primitive or CDT) by name.
func (r *Registry) ByName(name string) (ID, bool) {
	for id, n := range primitiveNames {
		if n == name {
			return id, true
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// Package store implements the OpenDAX tag store: the in-memory database
// of tags, their backing byte regions, and per-tag locking.
package store

import (
	"fmt"
	"sync"

	"opendax/internal/daxerr"
	"opendax/internal/types"
	"opendax/logger"
)

// Attr is a bit in a tag's 16-bit attribute mask.
type Attr uint16

const (
	AttrReadonly Attr = 1 << iota
	AttrSpecial
	AttrVirtual
	AttrQueue
	AttrRetained
)

// Has reports whether mask includes attr.
func (mask Attr) Has(attr Attr) bool { return mask&attr != 0 }

// TagMeta is the externally visible metadata of one tag.
type TagMeta struct {
	Index uint32
	Name  string
	Type  types.ID
	Count uint
	Attrs Attr
	Size  uint // backing size in bytes: ceil(size_bits(Type)*Count/8)
}

// VirtualReadFunc is a module-registered callback serving reads of a
// VIRTUAL tag, since such tags have no backing store.
type VirtualReadFunc func(meta TagMeta, out []byte) error

// tagRecord is the store's internal representation of one tag slot.
// Slots are never removed from the vector; deleted tags are tombstoned so
// their index is never reused, satisfying the "indices are dense from 0 up
// to _lastindex and never reused" invariant.
type tagRecord struct {
	meta       TagMeta
	data       []byte
	lock       sync.RWMutex
	tombstoned bool
	virtualRead VirtualReadFunc
	queue      *fifoQueue
}

// Store holds every tag's metadata and backing bytes.
//
// Locking mirrors the teacher's LockManager split: a short-held
// structural lock (structMu) guards add/delete and the name map and
// backing-vector growth; each tag's own RWMutex (tagRecord.lock) guards
// its data for reads and writes. Index-stable pointers into the backing
// vector are never handed out - callers always address a tag through
// (index, offset), so a vector grow-and-copy under structMu cannot
// invalidate anything a caller is holding.
type Store struct {
	structMu sync.Mutex
	tags     []*tagRecord
	byName   map[string]uint32
	registry *types.Registry

	maxNameLength int
}

// New creates an empty Store with the given initial backing-vector
// capacity (grown by doubling) and maximum tag name length.
func New(registry *types.Registry, initialCapacity, maxNameLength int) *Store {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	s := &Store{
		tags:          make([]*tagRecord, 0, initialCapacity),
		byName:        make(map[string]uint32),
		registry:      registry,
		maxNameLength: maxNameLength,
	}
	registerReserved(s)
	return s
}

// Add creates a new tag. A duplicate Add of an identical (name, type,
// count) returns the existing index; a conflicting re-add of a live name
// returns ALREADY_EXISTS.
func (s *Store) Add(name string, typ types.ID, count uint, attrs Attr) (uint32, error) {
	if err := ValidateName(name, s.maxNameLength); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, daxerr.New(daxerr.BadArg, "count must be >= 1")
	}

	sizeBits := s.registry.SizeBits(typ)
	if sizeBits == 0 && typ != types.ID(0) {
		// Unknown type: size_bits returns 0 only for unregistered ids.
		return 0, daxerr.New(daxerr.BadType, fmt.Sprintf("unknown type %d", typ))
	}
	sizeBytes := (sizeBits*count + 7) / 8

	logger.LogLockOperation("", "Mutex", "store.structMu", "lock_acquire")
	s.structMu.Lock()
	logger.LogLockOperation("", "Mutex", "store.structMu", "lock_acquired")
	defer func() {
		s.structMu.Unlock()
		logger.LogLockOperation("", "Mutex", "store.structMu", "unlock")
	}()

	if idx, exists := s.byName[name]; exists {
		existing := s.tags[idx]
		if existing.meta.Type == typ && existing.meta.Count == count {
			return idx, nil
		}
		return 0, daxerr.New(daxerr.AlreadyExists, fmt.Sprintf("tag %q already exists with different type/count", name))
	}

	rec := &tagRecord{
		meta: TagMeta{
			Name:  name,
			Type:  typ,
			Count: count,
			Attrs: attrs,
			Size:  sizeBytes,
		},
	}
	if attrs.Has(AttrVirtual) {
		// No backing allocation: reads are served by a registered callback.
	} else if attrs.Has(AttrQueue) {
		rec.queue = newFIFOQueue(sizeBytes)
	} else {
		rec.data = make([]byte, sizeBytes)
	}

	idx := uint32(len(s.tags))
	rec.meta.Index = idx
	s.tags = append(s.tags, rec)
	s.byName[name] = idx

	logger.TraceIf("locks", "store: added tag %q at index %d", name, idx)
	return idx, nil
}

// Delete tombstones a tag's slot. SPECIAL tags can never be deleted.
func (s *Store) Delete(index uint32) error {
	logger.LogLockOperation("", "Mutex", "store.structMu", "lock_acquire")
	s.structMu.Lock()
	logger.LogLockOperation("", "Mutex", "store.structMu", "lock_acquired")
	defer func() {
		s.structMu.Unlock()
		logger.LogLockOperation("", "Mutex", "store.structMu", "unlock")
	}()

	rec, err := s.recordLocked(index)
	if err != nil {
		return err
	}
	if rec.meta.Attrs.Has(AttrSpecial) {
		return daxerr.New(daxerr.Illegal, "special tags cannot be deleted")
	}

	tagName := fmt.Sprintf("tag:%d", index)
	logger.LogLockOperation("", "RWMutex", tagName, "lock_acquire")
	rec.lock.Lock()
	logger.LogLockOperation("", "RWMutex", tagName, "lock_acquired")
	rec.tombstoned = true
	rec.data = nil
	rec.queue = nil
	rec.lock.Unlock()
	logger.LogLockOperation("", "RWMutex", tagName, "unlock")

	delete(s.byName, rec.meta.Name)
	return nil
}

func (s *Store) recordLocked(index uint32) (*tagRecord, error) {
	if int(index) < 0 || int(index) >= len(s.tags) {
		return nil, daxerr.ErrNotFound
	}
	rec := s.tags[index]
	if rec.tombstoned {
		return nil, daxerr.ErrNotFound
	}
	return rec, nil
}

// record resolves a tag record for data access without holding the
// structural lock for the duration - only to snapshot the slot pointer,
// since the vector itself is append-only after growth and slots are
// never moved.
func (s *Store) record(index uint32) (*tagRecord, error) {
	s.structMu.Lock()
	rec, err := s.recordLocked(index)
	s.structMu.Unlock()
	return rec, err
}

// ByIndex returns a tag's metadata.
func (s *Store) ByIndex(index uint32) (TagMeta, error) {
	rec, err := s.record(index)
	if err != nil {
		return TagMeta{}, err
	}
	rec.lock.RLock()
	defer rec.lock.RUnlock()
	return rec.meta, nil
}

// ByName returns a tag's metadata looked up by name.
func (s *Store) ByName(name string) (TagMeta, error) {
	s.structMu.Lock()
	idx, ok := s.byName[name]
	s.structMu.Unlock()
	if !ok {
		return TagMeta{}, daxerr.ErrNotFound
	}
	return s.ByIndex(idx)
}

// LastIndex returns the highest valid (non-tombstoned or not) tag index,
// backing the _lastindex special tag.
func (s *Store) LastIndex() uint32 {
	s.structMu.Lock()
	defer s.structMu.Unlock()
	if len(s.tags) == 0 {
		return 0
	}
	return uint32(len(s.tags) - 1)
}

// List returns metadata for every live tag.
func (s *Store) List() []TagMeta {
	s.structMu.Lock()
	defer s.structMu.Unlock()

	out := make([]TagMeta, 0, len(s.tags))
	for _, rec := range s.tags {
		rec.lock.RLock()
		if !rec.tombstoned {
			out = append(out, rec.meta)
		}
		rec.lock.RUnlock()
	}
	return out
}

// ListByAttr returns metadata for every live tag whose attribute mask
// intersects attrMask.
func (s *Store) ListByAttr(attrMask Attr) []TagMeta {
	all := s.List()
	out := make([]TagMeta, 0, len(all))
	for _, m := range all {
		if m.Attrs&attrMask != 0 {
			out = append(out, m)
		}
	}
	return out
}

// RegisterVirtualRead attaches a module-registered before-read callback to
// a VIRTUAL tag.
func (s *Store) RegisterVirtualRead(index uint32, fn VirtualReadFunc) error {
	rec, err := s.record(index)
	if err != nil {
		return err
	}
	if !rec.meta.Attrs.Has(AttrVirtual) {
		return daxerr.New(daxerr.BadArg, "tag is not VIRTUAL")
	}
	rec.lock.Lock()
	rec.virtualRead = fn
	rec.lock.Unlock()
	return nil
}

// WithTagLock resolves index and runs fn while holding the tag's lock
// (read or write, per exclusive), giving callers in other packages (the
// I/O engine) access to the record's backing bytes without exposing the
// tagRecord type itself.
func (s *Store) WithTagLock(index uint32, exclusive bool, fn func(meta TagMeta, data []byte, virtualRead VirtualReadFunc, queue Queue) error) error {
	rec, err := s.record(index)
	if err != nil {
		return err
	}

	tagName := fmt.Sprintf("tag:%d", index)
	if exclusive {
		logger.LogLockOperation("", "RWMutex", tagName, "lock_acquire")
		rec.lock.Lock()
		logger.LogLockOperation("", "RWMutex", tagName, "lock_acquired")
		defer func() {
			rec.lock.Unlock()
			logger.LogLockOperation("", "RWMutex", tagName, "unlock")
		}()
	} else {
		logger.LogLockOperation("", "RWMutex", tagName, "rlock_acquire")
		rec.lock.RLock()
		logger.LogLockOperation("", "RWMutex", tagName, "rlock_acquired")
		defer func() {
			rec.lock.RUnlock()
			logger.LogLockOperation("", "RWMutex", tagName, "runlock")
		}()
	}

	if rec.tombstoned {
		return daxerr.ErrNotFound
	}
	// rec.queue is a typed *fifoQueue; passed through a plain interface
	// variable so a nil queue surfaces as a true nil interface, not a
	// non-nil interface wrapping a nil pointer.
	var q Queue
	if rec.queue != nil {
		q = rec.queue
	}
	return fn(rec.meta, rec.data, rec.virtualRead, q)
}

// Registry returns the type registry this store resolves types against.
func (s *Store) Registry() *types.Registry { return s.registry }

package events

import (
	"fmt"
	"sort"
	"sync"

	"opendax/internal/daxerr"
	"opendax/internal/store"
	"opendax/internal/types"
	"opendax/logger"
)

// Dispatcher is the event subsystem's per-server state: the registered
// events, indexed by tag for write-time matching and by session for
// ownership cleanup. One short-held mutex guards the indices; the actual
// tag data an event evaluates against is already snapshotted by the
// caller (ioengine) under the tag's own lock, mirroring the teacher's
// ShardedTagIndex split between an index mutex and per-entry data.
type Dispatcher struct {
	mu        sync.Mutex
	registry  *types.Registry
	byTag     map[uint32][]*Event
	byID      map[uint64]*Event
	bySession map[Notifier][]*Event
	nextID    uint64
	nextSeq   uint64
}

// New creates an empty Dispatcher resolving element types against reg.
func New(reg *types.Registry) *Dispatcher {
	return &Dispatcher{
		registry:  reg,
		byTag:     make(map[uint32][]*Event),
		byID:      make(map[uint64]*Event),
		bySession: make(map[Notifier][]*Event),
	}
}

// Add registers a new event on h, owned by owner, invoking free exactly
// once when the event is later removed (by Del or by session cleanup).
func (d *Dispatcher) Add(h store.Handle, kind Kind, threshold, deadband float64, opts Options, owner Notifier, free FreeCallback) (uint64, error) {
	if owner == nil {
		return 0, daxerr.New(daxerr.BadArg, "event must have an owning session")
	}
	if kind.isScalar() && types.IsCustom(h.Type) {
		return 0, daxerr.New(daxerr.BadType, fmt.Sprintf("%s is not valid on a compound-typed handle", kind))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	ev := &Event{
		ID:        d.nextID,
		Handle:    h,
		Kind:      kind,
		Threshold: threshold,
		Deadband:  deadband,
		Options:   opts,
		Owner:     owner,
		Free:      free,
		seq:       d.nextSeq,
	}
	d.nextSeq++

	d.byTag[h.TagIndex] = append(d.byTag[h.TagIndex], ev)
	d.byID[ev.ID] = ev
	d.bySession[owner] = append(d.bySession[owner], ev)

	logger.TraceIf("events", "event %d added: tag=%d kind=%s", ev.ID, h.TagIndex, kind)
	return ev.ID, nil
}

// Del removes an event by id and invokes its free-callback exactly once.
func (d *Dispatcher) Del(id uint64) error {
	d.mu.Lock()
	ev, ok := d.byID[id]
	if !ok {
		d.mu.Unlock()
		return daxerr.ErrNotFound
	}
	d.removeLocked(ev)
	d.mu.Unlock()

	if ev.Free != nil {
		ev.Free()
	}
	return nil
}

// Options updates the delivery options of a registered event.
func (d *Dispatcher) Options(id uint64, opts Options) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ev, ok := d.byID[id]
	if !ok {
		return daxerr.ErrNotFound
	}
	ev.Options = opts
	return nil
}

// removeLocked detaches ev from every index. Callers must hold d.mu and
// invoke ev.Free afterward, outside the lock.
func (d *Dispatcher) removeLocked(ev *Event) {
	delete(d.byID, ev.ID)
	d.byTag[ev.Handle.TagIndex] = removeEvent(d.byTag[ev.Handle.TagIndex], ev)
	if len(d.byTag[ev.Handle.TagIndex]) == 0 {
		delete(d.byTag, ev.Handle.TagIndex)
	}
	d.bySession[ev.Owner] = removeEvent(d.bySession[ev.Owner], ev)
	if len(d.bySession[ev.Owner]) == 0 {
		delete(d.bySession, ev.Owner)
	}
}

func removeEvent(list []*Event, ev *Event) []*Event {
	for i, e := range list {
		if e == ev {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Dispatch matches every event registered on tagIndex whose range
// overlaps [writeOffset, writeOffset+writeSize) against pre/post, two
// full-tag snapshots taken immediately before and after the mutation
// while the tag's lock was held, and delivers a notification for each
// one that fires. Multiple events on the same tag fire in insertion
// order.
func (d *Dispatcher) Dispatch(tagIndex uint32, writeOffset, writeSize uint, pre, post []byte) {
	d.mu.Lock()
	evs := append([]*Event(nil), d.byTag[tagIndex]...)
	d.mu.Unlock()

	sort.Slice(evs, func(i, j int) bool { return evs[i].seq < evs[j].seq })

	writeEnd := writeOffset + writeSize
	for _, ev := range evs {
		evEnd := ev.Handle.ByteOffset + ev.Handle.SizeBytes
		if evEnd <= writeOffset || ev.Handle.ByteOffset >= writeEnd {
			continue
		}

		fired, payload := d.evaluate(ev, pre, post)
		if !fired {
			continue
		}

		d.deliver(ev, payload)

		if ev.Options.Has(OneShot) {
			if err := d.Del(ev.ID); err != nil {
				logger.Warn("events: one-shot cleanup of event %d: %v", ev.ID, err)
			}
		}
	}
}

func (d *Dispatcher) deliver(ev *Event, payload []byte) {
	n := Notification{EventID: ev.ID, TagIndex: ev.Handle.TagIndex, Kind: ev.Kind, Data: payload}
	if err := ev.Owner.Notify(n); err != nil {
		logger.Warn("events: delivery of event %d to its session failed: %v", ev.ID, err)
	}
}

// evaluate decides whether ev fires given the tag's full pre/post
// snapshots, returning the SEND_DATA payload when it does.
func (d *Dispatcher) evaluate(ev *Event, pre, post []byte) (fired bool, payload []byte) {
	h := ev.Handle
	startBit := h.ByteOffset*8 + h.BitOffset
	nBits := d.registry.SizeBits(h.Type) * h.ElementCount

	switch ev.Kind {
	case Write:
		fired = true
	case Change:
		fired = !bitsEqual(pre, post, startBit, nBits)
	case Set:
		fired = bitTransition(pre, post, startBit, nBits, false, true)
	case Reset:
		fired = bitTransition(pre, post, startBit, nBits, true, false)
	case Greater, Less, Equal:
		fired = d.evaluateScalar(ev, post, func(v float64) bool {
			switch ev.Kind {
			case Greater:
				return v > ev.Threshold
			case Less:
				return v < ev.Threshold
			default:
				return v == ev.Threshold
			}
		})
	case Deadband:
		fired = d.evaluateDeadband(ev, post)
	}

	if !fired {
		return false, nil
	}
	if ev.Options.Has(SendData) {
		payload = capturePayload(d.registry, h, post)
	}
	return true, payload
}

func (d *Dispatcher) evaluateScalar(ev *Event, post []byte, test func(float64) bool) bool {
	h := ev.Handle
	elemBytes := d.registry.SizeBytes(h.Type)
	if elemBytes == 0 {
		return false
	}
	for k := uint(0); k < h.ElementCount; k++ {
		v, ok := decodeElement(d.registry, h.Type, elemBytes, post, h.ByteOffset, k)
		if ok && test(v) {
			return true
		}
	}
	return false
}

// evaluateDeadband mutates ev.lastNotified without its own lock: callers
// only reach here from Dispatch, which ioengine invokes while still
// holding the written tag's exclusive lock, so two writes to the same
// tag can never evaluate the same event concurrently.
func (d *Dispatcher) evaluateDeadband(ev *Event, post []byte) bool {
	h := ev.Handle
	elemBytes := d.registry.SizeBytes(h.Type)
	if elemBytes == 0 {
		return false
	}
	v, ok := decodeElement(d.registry, h.Type, elemBytes, post, h.ByteOffset, 0)
	if !ok {
		return false
	}
	if !ev.hasLastNotified {
		ev.hasLastNotified = true
		ev.lastNotified = v
		return false
	}
	delta := v - ev.lastNotified
	if delta < 0 {
		delta = -delta
	}
	if delta < ev.Deadband {
		return false
	}
	ev.lastNotified = v
	return true
}

// capturePayload copies post's bytes for h and converts them to
// host-native order for delivery, the same conversion Read performs.
func capturePayload(reg *types.Registry, h store.Handle, post []byte) []byte {
	if h.ByteOffset+h.SizeBytes > uint(len(post)) {
		return nil
	}
	out := append([]byte(nil), post[h.ByteOffset:h.ByteOffset+h.SizeBytes]...)
	types.SwapElements(reg, h.Type, h.ElementCount, out)
	return out
}

package events

import "sort"

// CloseSession removes every event owned by owner, invoking each
// free-callback exactly once in reverse insertion order: the newest
// registration is torn down first, mirroring the teacher's deletion
// collector draining its work queue LIFO on shutdown.
func (d *Dispatcher) CloseSession(owner Notifier) {
	d.mu.Lock()
	owned := append([]*Event(nil), d.bySession[owner]...)
	d.mu.Unlock()

	sort.Slice(owned, func(i, j int) bool { return owned[i].seq > owned[j].seq })

	for _, ev := range owned {
		d.mu.Lock()
		_, stillPresent := d.byID[ev.ID]
		if stillPresent {
			d.removeLocked(ev)
		}
		d.mu.Unlock()
		if stillPresent && ev.Free != nil {
			ev.Free()
		}
	}
}

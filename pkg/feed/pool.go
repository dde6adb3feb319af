// ABOUTME: Fixed pool of device buffer slots
// ABOUTME: Tracks which slots are queued on the device so none is queued twice
package feed

import "github.com/Resonate-Protocol/ringfeed/pkg/audio/output"

// pool holds the N slots allocated at initialization; slots are reused until teardown
type pool struct {
	slots    []output.BufferSlot
	inFlight map[output.BufferSlot]bool
}

func newPool(slots []output.BufferSlot) *pool {
	return &pool{
		slots:    slots,
		inFlight: make(map[output.BufferSlot]bool, len(slots)),
	}
}

func (p *pool) size() int {
	return len(p.slots)
}

// free returns the lowest-index slot not queued on the device
func (p *pool) free() (output.BufferSlot, bool) {
	for _, slot := range p.slots {
		if !p.inFlight[slot] {
			return slot, true
		}
	}
	return 0, false
}

func (p *pool) markQueued(slot output.BufferSlot) {
	p.inFlight[slot] = true
}

func (p *pool) release(slot output.BufferSlot) {
	delete(p.inFlight, slot)
}

func (p *pool) releaseAll() {
	clear(p.inFlight)
}

func (p *pool) queued() int {
	return len(p.inFlight)
}

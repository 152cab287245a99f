package tomasulo

import "github.com/vmips-go/vmips/insts"

// ROBEntry is one reorder buffer slot: it carries an in-flight
// instruction's destination, its value once computed, and (for a branch
// or jump) the predicted and actual targets used to detect a
// misprediction at commit time.
type ROBEntry struct {
	Busy   bool
	Instr  insts.Instruction
	PC     uint32
	Status Status

	HasDest bool
	Dest    uint8
	DestFP  bool
	Value   uint32

	// Hi carries the upper half of a MULT/DIV result; Value carries LO.
	Hi         uint32
	WritesHiLo bool

	// WritesCC marks an FP comparison whose result (Value != 0) lands in
	// the FP condition code at commit.
	WritesCC bool

	// IsStore marks an entry whose memory write is deferred to commit;
	// Address and StoreSize describe the access, Value the data.
	IsStore   bool
	Address   uint32
	StoreSize int

	IsBranch        bool
	PredictedTarget uint32
	ActualTarget    uint32
	Mispredicted    bool

	// Fault is a violation detected during execution (misaligned or
	// out-of-bounds access) that becomes terminal when the entry reaches
	// the commit point.
	Fault error
}

// Reset empties the entry.
func (e *ROBEntry) Reset() { *e = ROBEntry{} }

// Complete records a station's computed result, marking the entry ready
// to commit and, for a branch, comparing against the entry's predicted
// target.
func (e *ROBEntry) Complete(value uint32, actualTarget uint32) {
	e.Status = StatusCompleted
	e.Value = value
	if e.IsBranch {
		e.ActualTarget = actualTarget
		e.Mispredicted = actualTarget != e.PredictedTarget
	}
}

// ReorderBuffer is a fixed-capacity circular FIFO of ROBEntry, indexed by
// absolute sequence number modulo capacity.
type ReorderBuffer struct {
	entries []ROBEntry
	head    int
	tail    int
	count   int
}

// NewReorderBuffer creates a ReorderBuffer with room for capacity
// in-flight instructions.
func NewReorderBuffer(capacity int) *ReorderBuffer {
	return &ReorderBuffer{entries: make([]ROBEntry, capacity)}
}

// Capacity returns the ROB's maximum occupancy.
func (r *ReorderBuffer) Capacity() int { return len(r.entries) }

// Count returns the number of entries currently in flight.
func (r *ReorderBuffer) Count() int { return r.count }

// Full reports whether the ROB has no free entry.
func (r *ReorderBuffer) Full() bool { return r.count == len(r.entries) }

// Allocate reserves the next tail slot for a newly issued instruction and
// returns its absolute index: the rename tag stations carry in Dest and
// compare CDB broadcasts against.
func (r *ReorderBuffer) Allocate() int {
	idx := r.tail
	r.entries[idx] = ROBEntry{Busy: true, Status: StatusWaiting}
	r.tail = (r.tail + 1) % len(r.entries)
	r.count++
	return idx
}

// Entry returns a pointer to the entry at absolute index idx.
func (r *ReorderBuffer) Entry(idx int) *ROBEntry {
	return &r.entries[idx]
}

// Head returns the absolute index of the oldest in-flight entry, and
// whether the ROB is non-empty.
func (r *ReorderBuffer) Head() (int, bool) {
	if r.count == 0 {
		return 0, false
	}
	return r.head, true
}

// PopHead retires the head entry, freeing its slot.
func (r *ReorderBuffer) PopHead() {
	r.entries[r.head].Reset()
	r.head = (r.head + 1) % len(r.entries)
	r.count--
}

// Flush discards every in-flight entry. Misprediction recovery calls this
// after the mispredicted branch itself has been retired from the head, so
// everything still in the buffer is wrong-path work.
func (r *ReorderBuffer) Flush() {
	for i := range r.entries {
		r.entries[i].Reset()
	}
	r.head = 0
	r.tail = 0
	r.count = 0
}

// Utilization returns the fraction of ROB capacity currently occupied.
func (r *ReorderBuffer) Utilization() float64 {
	if len(r.entries) == 0 {
		return 0
	}
	return float64(r.count) / float64(len(r.entries))
}

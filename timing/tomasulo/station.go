// Package tomasulo implements the out-of-order execution core: register
// renaming via a Register Alias Table, reservation stations, a reorder
// buffer for in-order commit, a common data bus for result broadcast, and
// a pool of typed functional units.
package tomasulo

import "github.com/vmips-go/vmips/insts"

// Status is the lifecycle state of an instruction occupying a
// reservation station or ROB entry.
type Status uint8

const (
	StatusWaiting Status = iota
	StatusExecuting
	StatusCompleted
	StatusCommitted
)

// Station is one reservation station: it holds an instruction until its
// operands are available, then dispatches to a functional unit.
type Station struct {
	ID     int
	Busy   bool
	Instr  insts.Instruction
	PC     uint32
	Status Status

	Vj, Vk uint32
	// Qj/Qk name the ROB entry that will produce the missing operand, or
	// -1 when the value is already in Vj/Vk. They are the rename tags
	// compared against the CDB's Rob field each cycle.
	Qj, Qk int

	Dest int // ROB entry this station's result targets
}

// IsReady reports whether the station's operands are all available and
// it has not yet been dispatched to a functional unit.
func (s *Station) IsReady() bool {
	return s.Busy && s.Qj == -1 && s.Qk == -1 && s.Status == StatusWaiting
}

// Reset empties the station.
func (s *Station) Reset() {
	id := s.ID
	*s = Station{ID: id, Qj: -1, Qk: -1, Dest: -1}
}

// NewStation creates an empty, available station.
func NewStation(id int) *Station {
	s := &Station{ID: id}
	s.Reset()
	return s
}

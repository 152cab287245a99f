package tomasulo

// CommonDataBus is the single-slot result broadcast bus. A value written
// during one cycle's execute phase is consumed by every listener at the
// start of the next cycle, then dropped: the bus holds exactly one
// (station, value) pair for exactly one cycle.
type CommonDataBus struct {
	Valid   bool
	Station int
	// Rob is the ROB entry the producing station was issued against; it is
	// the rename tag waiting stations compare their Qj/Qk against.
	Rob   int
	Value uint32
	// ActualTarget is the resolved control-flow target when the producing
	// station held a branch or jump; zero otherwise.
	ActualTarget uint32
}

// Broadcast latches a result onto the bus. The caller must have checked
// Valid: only one producer may drive the bus per cycle.
func (b *CommonDataBus) Broadcast(station, rob int, value, actualTarget uint32) {
	b.Valid = true
	b.Station = station
	b.Rob = rob
	b.Value = value
	b.ActualTarget = actualTarget
}

// Clear empties the bus.
func (b *CommonDataBus) Clear() {
	*b = CommonDataBus{}
}

package tomasulo

// Snapshot is a point-in-time copy of the processor's speculative state:
// every busy reservation station, every in-flight ROB entry in commit
// order, and the current register renames. Visualization tooling renders
// it; nothing in the snapshot aliases live processor state.
type Snapshot struct {
	Stations []Station
	ROB      []ROBEntry
	RAT      map[uint8]int
	CDB      CommonDataBus
	Stats    Stats
}

// Snapshot captures the processor's current state.
func (p *Processor) Snapshot() Snapshot {
	snap := Snapshot{
		Stations: make([]Station, 0, len(p.stations)),
		RAT:      p.rat.Entries(),
		CDB:      p.cdb,
		Stats:    p.stats,
	}
	for _, s := range p.stations {
		if s.Busy {
			snap.Stations = append(snap.Stations, *s)
		}
	}

	count := p.rob.Count()
	if idx, ok := p.rob.Head(); ok {
		for i := 0; i < count; i++ {
			snap.ROB = append(snap.ROB, *p.rob.Entry((idx + i) % p.rob.Capacity()))
		}
	}
	return snap
}

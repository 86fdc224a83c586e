package bufferpool

// Stats is a snapshot of buffer pool counters, exposed so a metrics layer
// built on top of this core (e.g. a Prometheus exporter) can publish them
// without reaching into pool internals.
type Stats struct {
	Capacity  int
	Resident  int
	Hits      int
	Misses    int
	Evictions int
}

// Stats returns a snapshot of the pool's hit/miss/eviction counters.
func (bp *BufferPool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	return Stats{
		Capacity:  len(bp.frames),
		Resident:  len(bp.pageTable),
		Hits:      bp.hits,
		Misses:    bp.misses,
		Evictions: bp.evictions,
	}
}

package scheduler

// DiskBackend is the Scheduler's view of persistent storage. It is an
// interface rather than a concrete filesystem dependency per spec.md §9's
// open question on web targets: "the core should accept a pluggable disk
// backend rather than assume a POSIX filesystem." internal/diskcache.Store
// is the POSIX-filesystem-plus-SQLite-index implementation; an emscripten
// embedder would instead back this with browser storage.
type DiskBackend interface {
	WriteAll(quads []TileQuad)
	ReadAll() []TileQuad
}

// SetDiskBackend wires the backend PersistTiles and ReadDiskCache use. It is
// optional: a Scheduler with no backend simply treats both calls as no-ops,
// consistent with spec.md §7's "persistence is best-effort; failure does
// not propagate."
func (s *Scheduler) SetDiskBackend(b DiskBackend) {
	s.mu.Lock()
	s.disk = b
	s.mu.Unlock()
}

// PersistTiles writes the current RAM cache snapshot to the configured disk
// backend (spec.md §4.7 "persist_tiles()"). A no-op if no backend is set.
func (s *Scheduler) PersistTiles() {
	s.mu.Lock()
	disk := s.disk
	s.mu.Unlock()
	if disk == nil {
		return
	}
	disk.WriteAll(s.SnapshotRamCache())
}

// ReadDiskCache loads every quad the disk backend has and preloads them into
// RAM (spec.md §4.7 "read_disk_cache()"), typically called once at startup
// before the pipeline begins issuing requests. A no-op if no backend is set.
func (s *Scheduler) ReadDiskCache() {
	s.mu.Lock()
	disk := s.disk
	s.mu.Unlock()
	if disk == nil {
		return
	}
	s.PreloadRamCache(disk.ReadAll())
}

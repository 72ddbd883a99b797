package router

import (
	"fmt"
	"sync"

	"mercator-hq/saturn/pkg/protocol"
)

// shardSlot tracks the one worker serving a shard. A slot is reserved
// during the handshake and attached once the handshake succeeds, so two
// racing connections for the same shard cannot both win.
type shardSlot struct {
	shard protocol.ShardID

	mu       sync.Mutex
	reserved bool
	conn     workerConn
	workerID protocol.WorkerID

	// revision and indexGen form the stale index guard: a reported index
	// older than this pair is ignored.
	revision protocol.Revision
	indexGen protocol.IndexGeneration

	// cachedInfo is the cache announcement of the attached worker,
	// consumed by the first IndexWorkspace after attach.
	cachedInfo *protocol.ShardIndexInfo
}

func (s *shardSlot) tryReserve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserved || s.conn != nil {
		return fmt.Errorf("shard %d already has a connected worker", s.shard)
	}
	s.reserved = true
	return nil
}

func (s *shardSlot) releaseReservation() {
	s.mu.Lock()
	s.reserved = false
	s.mu.Unlock()
}

func (s *shardSlot) attach(conn workerConn, id protocol.WorkerID, cached *protocol.ShardIndexInfo) {
	s.mu.Lock()
	s.reserved = false
	s.conn = conn
	s.workerID = id
	s.cachedInfo = cached
	if cached != nil {
		// Adopt the announced pair as the guard baseline so a stale
		// cache cannot roll an already-indexed shard backwards.
		if s.newerLocked(cached.Revision, cached.IndexGeneration) {
			s.revision = cached.Revision
			s.indexGen = cached.IndexGeneration
		} else {
			s.cachedInfo = nil
		}
	}
	s.mu.Unlock()
}

// detach clears the slot if conn is still the attached connection.
func (s *shardSlot) detach(conn workerConn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.workerID = 0
		s.cachedInfo = nil
	}
	s.mu.Unlock()
}

func (s *shardSlot) get() (workerConn, protocol.WorkerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.workerID, s.conn != nil
}

func (s *shardSlot) currentRevision() protocol.Revision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// takeCachedInfo consumes the attach-time cache announcement.
func (s *shardSlot) takeCachedInfo() *protocol.ShardIndexInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.cachedInfo
	s.cachedInfo = nil
	return info
}

func (s *shardSlot) setCachedInfo(info *protocol.ShardIndexInfo) {
	s.mu.Lock()
	s.cachedInfo = info
	s.mu.Unlock()
}

// applyIndex records a reported index summary unless it is older than
// the currently applied pair.
func (s *shardSlot) applyIndex(info protocol.ShardIndexInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.newerLocked(info.Revision, info.IndexGeneration) {
		return false
	}
	s.revision = info.Revision
	s.indexGen = info.IndexGeneration
	return true
}

// noteUpdate tracks an accepted file update.
func (s *shardSlot) noteUpdate() {
	s.mu.Lock()
	s.revision++
	s.mu.Unlock()
}

// newerLocked reports whether (rev, gen) is not older than the current
// pair, compared lexicographically.
func (s *shardSlot) newerLocked(rev protocol.Revision, gen protocol.IndexGeneration) bool {
	if rev != s.revision {
		return rev > s.revision
	}
	return gen >= s.indexGen
}

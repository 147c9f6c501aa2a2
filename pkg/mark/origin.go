package mark

import (
	"sync"

	"github.com/panbanda/relocate/pkg/diagnostic"
)

const originShards = 64

// origins keeps, per reference id, the smallest location that referenced it.
type origins struct {
	shards [originShards]struct {
		mu   sync.Mutex
		locs map[uint32]diagnostic.Location
	}
}

func newOrigins() *origins {
	o := &origins{}
	for i := range o.shards {
		o.shards[i].locs = make(map[uint32]diagnostic.Location)
	}
	return o
}

func (o *origins) observe(id uint32, loc diagnostic.Location) {
	s := &o.shards[id%originShards]
	s.mu.Lock()
	if cur, ok := s.locs[id]; !ok || loc.Compare(cur) < 0 {
		s.locs[id] = loc
	}
	s.mu.Unlock()
}

func (o *origins) get(id uint32) diagnostic.Location {
	s := &o.shards[id%originShards]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locs[id]
}

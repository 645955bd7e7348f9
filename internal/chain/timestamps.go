package chain

import "sync"

// timestampCache keeps the most recently added block timestamps, evicting
// the oldest insertion once full.
type timestampCache struct {
	mu    sync.RWMutex
	byNum map[uint64]uint64
	order []uint64
	next  int
}

func newTimestampCache(size int) *timestampCache {
	if size <= 0 {
		size = 1
	}
	return &timestampCache{
		byNum: make(map[uint64]uint64, size),
		order: make([]uint64, 0, size),
	}
}

func (c *timestampCache) get(number uint64) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.byNum[number]
	return ts, ok
}

func (c *timestampCache) put(number, ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byNum[number]; ok {
		c.byNum[number] = ts
		return
	}
	if len(c.order) < cap(c.order) {
		c.order = append(c.order, number)
	} else {
		delete(c.byNum, c.order[c.next])
		c.order[c.next] = number
		c.next = (c.next + 1) % len(c.order)
	}
	c.byNum[number] = ts
}

func (c *timestampCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byNum)
}

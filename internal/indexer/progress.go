package indexer

import "sync"

// liveProgress tracks which blocks the live path may report as applied.
//
// A delivered event at block B marks the blocks below B covered once it and
// all earlier in-flight events are applied. Deliveries are not guaranteed to
// arrive in chain order, so the reported block trails covered by window
// blocks; only a range fetch (gap fill) confirms blocks without that margin.
// A live event dropped after a store failure pins the reported block below it
// until a later gap fill re-applies that block.
type liveProgress struct {
	mu        sync.Mutex
	confirmed uint64
	covered   uint64
	highest   uint64
	window    uint64
	failed    bool
	failedAt  uint64
	inflight  map[uint64]int
}

func newLiveProgress(confirmed, window uint64) *liveProgress {
	return &liveProgress{
		confirmed: confirmed,
		covered:   confirmed,
		window:    window,
		inflight:  make(map[uint64]int),
	}
}

func (p *liveProgress) begin(block uint64) {
	p.mu.Lock()
	p.inflight[block]++
	p.mu.Unlock()
}

// end marks one event at block handled and returns the block the watermark
// may advance to. dropped reports an event skipped after a store failure.
func (p *liveProgress) end(block uint64, dropped bool) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := p.inflight[block]; n <= 1 {
		delete(p.inflight, block)
	} else {
		p.inflight[block] = n - 1
	}
	// blocks up to confirmed were already applied by a range fetch
	if dropped && block > p.confirmed && (!p.failed || block < p.failedAt) {
		p.failed = true
		p.failedAt = block
	}
	if block > p.highest {
		p.highest = block
	}
	if p.highest > 0 {
		candidate := p.highest - 1
		for b := range p.inflight {
			if b == 0 {
				candidate = 0
				break
			}
			if b-1 < candidate {
				candidate = b - 1
			}
		}
		if candidate > p.covered {
			p.covered = candidate
		}
	}
	return p.safeLocked()
}

// raise records that every block up to block was applied from a range fetch.
func (p *liveProgress) raise(block uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if block > p.confirmed {
		p.confirmed = block
	}
	if block > p.covered {
		p.covered = block
	}
	if p.failed && p.failedAt <= block {
		p.failed = false
	}
}

// value returns the highest block the live path can vouch for.
func (p *liveProgress) value() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.safeLocked()
}

func (p *liveProgress) safeLocked() uint64 {
	safe := p.confirmed
	if p.covered > p.window && p.covered-p.window > safe {
		safe = p.covered - p.window
	}
	// failedAt > confirmed >= 0 holds whenever failed is set
	if p.failed && p.failedAt <= safe {
		safe = p.failedAt - 1
	}
	return safe
}

// watermark is the persisted progress of the coordinator. Backfill commits
// range ends directly. Live offers are held while a backfill runs and dropped
// for good once a backfill range has failed, so the stored value never skips
// unapplied blocks.
type watermark struct {
	mu          sync.Mutex
	value       uint64
	dirty       bool
	backfilling bool
	blocked     bool
	pendingLive uint64
}

func (w *watermark) get() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

func (w *watermark) init(block uint64) {
	w.mu.Lock()
	w.value = block
	w.mu.Unlock()
}

func (w *watermark) startBackfill() {
	w.mu.Lock()
	w.backfilling = true
	w.mu.Unlock()
}

// commitRange advances the watermark to the end of a completed backfill range.
func (w *watermark) commitRange(block uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.blocked || block <= w.value {
		return false
	}
	w.value = block
	w.dirty = true
	return true
}

func (w *watermark) block() {
	w.mu.Lock()
	w.blocked = true
	w.mu.Unlock()
}

func (w *watermark) finishBackfill() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.backfilling = false
	if !w.blocked && w.pendingLive > w.value {
		w.value = w.pendingLive
		w.dirty = true
	}
}

func (w *watermark) offerLive(block uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.blocked {
		return
	}
	if w.backfilling {
		if block > w.pendingLive {
			w.pendingLive = block
		}
		return
	}
	if block > w.value {
		w.value = block
		w.dirty = true
	}
}

// take returns the value to persist, if it changed since the last take.
func (w *watermark) take() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirty {
		return 0, false
	}
	w.dirty = false
	return w.value, true
}

// restore marks the current value dirty again after a failed save.
func (w *watermark) restore() {
	w.mu.Lock()
	w.dirty = true
	w.mu.Unlock()
}

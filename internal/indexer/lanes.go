package indexer

import (
	"context"
	"hash/fnv"
	"sync"

	"poolindexer/internal/model"
)

type laneTask struct {
	event model.Event
	done  func(error)
}

// lanes applies events on a fixed set of workers. Events of one pool always
// land on the same worker, so per-pool order matches submission order.
type lanes struct {
	queues []chan laneTask
	wg     sync.WaitGroup
}

func startLanes(ctx context.Context, workers, depth int, handle func(context.Context, model.Event) error) *lanes {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 64
	}
	// queued work is finished even after ctx is cancelled
	applyCtx := context.WithoutCancel(ctx)

	l := &lanes{queues: make([]chan laneTask, workers)}
	for i := range l.queues {
		q := make(chan laneTask, depth)
		l.queues[i] = q
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for task := range q {
				err := handle(applyCtx, task.event)
				if task.done != nil {
					task.done(err)
				}
			}
		}()
	}
	return l
}

// submit queues event on its pool's lane. It blocks while the lane is full
// and gives up when ctx is done.
func (l *lanes) submit(ctx context.Context, event model.Event, done func(error)) error {
	q := l.queues[l.shard(event)]
	select {
	case q <- laneTask{event: event, done: done}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting work and waits until every queued event is handled.
func (l *lanes) close() {
	for _, q := range l.queues {
		close(q)
	}
	l.wg.Wait()
}

func (l *lanes) shard(event model.Event) int {
	if len(l.queues) == 1 || event.Data == nil {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(event.Data.Pool()))
	return int(h.Sum32() % uint32(len(l.queues)))
}

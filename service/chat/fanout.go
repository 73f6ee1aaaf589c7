package chat

import (
	"hash/fnv"
	"sync"

	"PPGateway/tools/safe"
)

type fanoutJob struct {
	peers []Peer
	frame []byte
}

// Fanout spreads large broadcasts over a fixed set of workers. Every peer
// is pinned to one worker, so frames reach a peer in Broadcast order.
type Fanout struct {
	shards []chan fanoutJob

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{shards: make([]chan fanoutJob, workers)}
	for i := range f.shards {
		ch := make(chan fanoutJob, queue)
		f.shards[i] = ch
		f.wg.Add(1)
		safe.SafeGo("fanout-worker", func() {
			defer f.wg.Done()
			for job := range ch {
				for _, p := range job.peers {
					// Emit never blocks; a slow or closed peer just misses this frame.
					_ = p.Emit(job.frame)
				}
			}
		})
	}
	return f
}

func (f *Fanout) shardOf(connID string) int {
	if len(f.shards) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(connID))
	return int(h.Sum32() % uint32(len(f.shards)))
}

// Broadcast splits peers by worker and enqueues one job per worker. A full
// worker queue blocks the caller; dropping or emitting inline would let an
// older frame overtake a newer one. Reports false once the pool is closed.
// Callers that need a global order must serialize their Broadcast calls.
func (f *Fanout) Broadcast(peers []Peer, frame []byte) bool {
	if len(peers) == 0 || len(frame) == 0 {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return false
	}
	parts := make([][]Peer, len(f.shards))
	for _, p := range peers {
		i := f.shardOf(p.ID())
		parts[i] = append(parts[i], p)
	}
	for i, part := range parts {
		if len(part) == 0 {
			continue
		}
		f.shards[i] <- fanoutJob{peers: part, frame: frame}
	}
	return true
}

// Close stops accepting jobs and waits for queued ones to finish.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for _, ch := range f.shards {
		close(ch)
	}
	f.mu.Unlock()
	f.wg.Wait()
}

package consumer

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

type partitionKey struct {
	topic     string
	partition int
}

type partitionState struct {
	pending []int64
	done    map[int64]kafka.Message
}

// commitTracker releases offsets for commit only when every message fetched
// before them on the same partition has completed.
type commitTracker struct {
	// commitMu serialises complete+commit so commits never move backwards.
	commitMu sync.Mutex

	mu         sync.Mutex
	partitions map[partitionKey]*partitionState
}

func newCommitTracker() *commitTracker {
	return &commitTracker{partitions: make(map[partitionKey]*partitionState)}
}

func (t *commitTracker) track(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(msg)
	state.pending = append(state.pending, msg.Offset)
}

// complete marks msg done and returns the highest message that can now be
// committed, if any.
func (t *commitTracker) complete(msg kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(msg)
	state.done[msg.Offset] = msg

	var (
		last  kafka.Message
		found bool
	)
	for len(state.pending) > 0 {
		head := state.pending[0]
		doneMsg, ok := state.done[head]
		if !ok {
			break
		}
		delete(state.done, head)
		state.pending = state.pending[1:]
		last, found = doneMsg, true
	}
	return last, found
}

func (t *commitTracker) state(msg kafka.Message) *partitionState {
	key := partitionKey{topic: msg.Topic, partition: msg.Partition}
	state, ok := t.partitions[key]
	if !ok {
		state = &partitionState{done: make(map[int64]kafka.Message)}
		t.partitions[key] = state
	}
	return state
}

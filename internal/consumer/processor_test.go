package consumer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestProcessorCommitsOnSuccess(t *testing.T) {
	msg := kafka.Message{
		Topic:     "activity_events",
		Partition: 0,
		Offset:    10,
		Time:      time.Now().UTC(),
		Key:       []byte("act-1"),
		Value:     []byte(`{"id":"act-1"}`),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("activity.created")},
		},
	}

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(zaptest.NewLogger(t)))

	err := processor.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.callCount())
	require.Equal(t, []int64{10}, reader.committedOffsets())
	last := handler.lastMessage()
	require.Equal(t, "activity.created", last.Headers["event_type"])
	require.Equal(t, "act-1", string(last.Key))
	require.Equal(t, 1, last.Attempt)
	require.JSONEq(t, `{"id":"act-1"}`, string(last.Payload))
}

func TestProcessorRetriesThenDeadLetters(t *testing.T) {
	msg := kafka.Message{Topic: "activity_events", Partition: 0, Offset: 20, Value: []byte(`{}`)}

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{err: errors.New("provider unavailable")}
	sink := &stubSink{}

	processor := NewProcessor(reader, handler,
		WithLogger(zaptest.NewLogger(t)),
		WithMaxAttempts(3),
		WithRetryDelay(time.Millisecond, 2*time.Millisecond),
		WithDeadLetterSink(sink),
	)

	err := processor.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 3, handler.callCount())
	require.Len(t, sink.entries, 1)
	require.Equal(t, 3, sink.entries[0].attempts)
	require.Equal(t, int64(20), sink.entries[0].msg.Offset)
	require.EqualError(t, sink.entries[0].cause, "provider unavailable")
	require.Equal(t, []int64{20}, reader.committedOffsets())
}

func TestProcessorPermanentErrorSkipsRetries(t *testing.T) {
	msg := kafka.Message{Topic: "activity_events", Partition: 0, Offset: 5, Value: []byte(`not json`)}

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{err: Permanent(errors.New("bad payload"))}
	sink := &stubSink{}

	processor := NewProcessor(reader, handler,
		WithLogger(zaptest.NewLogger(t)),
		WithMaxAttempts(5),
		WithRetryDelay(time.Millisecond, time.Millisecond),
		WithDeadLetterSink(sink),
	)

	require.ErrorIs(t, processor.Run(context.Background()), context.Canceled)
	require.Equal(t, 1, handler.callCount())
	require.Len(t, sink.entries, 1)
	require.Equal(t, 1, sink.entries[0].attempts)
	require.Equal(t, []int64{5}, reader.committedOffsets())
}

func TestProcessorLeavesMessageUncommittedWhenDeadLetterFails(t *testing.T) {
	msg := kafka.Message{Topic: "activity_events", Partition: 0, Offset: 7}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{messages: []kafka.Message{msg}, block: true}
	handler := &stubHandler{err: Permanent(errors.New("bad payload"))}
	sink := &stubSink{err: errors.New("database down"), onWrite: cancel}

	processor := NewProcessor(reader, handler,
		WithLogger(zaptest.NewLogger(t)),
		WithRetryDelay(time.Millisecond, time.Millisecond),
		WithDeadLetterSink(sink),
	)

	require.ErrorIs(t, processor.Run(ctx), context.Canceled)
	require.Empty(t, reader.committedOffsets())
}

func TestProcessorCommitsOnlyContiguousOffsets(t *testing.T) {
	msgs := []kafka.Message{
		{Topic: "activity_events", Partition: 0, Offset: 0},
		{Topic: "activity_events", Partition: 0, Offset: 1},
		{Topic: "activity_events", Partition: 0, Offset: 2},
	}

	release := make(chan struct{})
	var released atomic.Bool
	var laterDone sync.WaitGroup
	laterDone.Add(2)

	handler := handlerFunc(func(_ context.Context, msg Message) error {
		if msg.Offset == 0 {
			<-release
			return nil
		}
		laterDone.Done()
		return nil
	})
	reader := &stubReader{messages: msgs, onCommit: func(kafka.Message) bool { return released.Load() }}

	processor := NewProcessor(reader, handler, WithLogger(zaptest.NewLogger(t)), WithWorkers(3))

	errCh := make(chan error, 1)
	go func() { errCh <- processor.Run(context.Background()) }()

	laterDone.Wait()
	released.Store(true)
	close(release)

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop")
	}

	offsets := reader.committedOffsets()
	require.NotEmpty(t, offsets)
	require.Equal(t, int64(2), offsets[len(offsets)-1])
	require.IsIncreasing(t, offsets)
	require.False(t, reader.committedEarly(), "offset committed before offset 0 completed")
}

func TestProcessorTimesOutStuckAttempts(t *testing.T) {
	msg := kafka.Message{Topic: "activity_events", Partition: 0, Offset: 12, Value: []byte(`{}`)}

	var calls atomic.Int32
	handler := handlerFunc(func(ctx context.Context, _ Message) error {
		calls.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})
	reader := &stubReader{messages: []kafka.Message{msg}}
	sink := &stubSink{}

	processor := NewProcessor(reader, handler,
		WithLogger(zaptest.NewLogger(t)),
		WithMaxAttempts(2),
		WithRetryDelay(time.Millisecond, time.Millisecond),
		WithProcessingTimeout(10*time.Millisecond),
		WithDeadLetterSink(sink),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- processor.Run(context.Background()) }()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stuck handler attempt was never released")
	}

	require.Equal(t, int32(2), calls.Load())
	require.Len(t, sink.entries, 1)
	require.Equal(t, 2, sink.entries[0].attempts)
	require.ErrorIs(t, sink.entries[0].cause, context.DeadlineExceeded)
	require.Contains(t, sink.entries[0].cause.Error(), "timed out after 10ms")
	require.Equal(t, []int64{12}, reader.committedOffsets())
}

func TestCommitTrackerTracksPartitionsIndependently(t *testing.T) {
	tracker := newCommitTracker()
	a0 := kafka.Message{Topic: "t", Partition: 0, Offset: 0}
	a1 := kafka.Message{Topic: "t", Partition: 0, Offset: 1}
	b0 := kafka.Message{Topic: "t", Partition: 1, Offset: 0}
	for _, m := range []kafka.Message{a0, a1, b0} {
		tracker.track(m)
	}

	_, ok := tracker.complete(a1)
	require.False(t, ok)

	next, ok := tracker.complete(b0)
	require.True(t, ok)
	require.Equal(t, 1, next.Partition)

	next, ok = tracker.complete(a0)
	require.True(t, ok)
	require.Equal(t, int64(1), next.Offset)
}

type stubReader struct {
	mu       sync.Mutex
	messages []kafka.Message
	index    int
	commits  []kafka.Message
	early    bool
	// block makes FetchMessage wait for ctx once messages run out.
	block bool
	// onCommit reports whether a commit is allowed at this point.
	onCommit func(kafka.Message) bool
}

func (r *stubReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.index < len(r.messages) {
		msg := r.messages[r.index]
		r.index++
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	return kafka.Message{}, context.Canceled
}

func (r *stubReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		if r.onCommit != nil && !r.onCommit(msg) {
			r.early = true
		}
		r.commits = append(r.commits, msg)
	}
	return nil
}

func (r *stubReader) Close() error { return nil }

func (r *stubReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	offsets := make([]int64, 0, len(r.commits))
	for _, msg := range r.commits {
		offsets = append(offsets, msg.Offset)
	}
	return offsets
}

func (r *stubReader) committedEarly() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.early
}

type stubHandler struct {
	mu    sync.Mutex
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	h.last = msg
	return h.err
}

func (h *stubHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *stubHandler) lastMessage() Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

type handlerFunc func(context.Context, Message) error

func (f handlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

type deadLetterEntry struct {
	msg      kafka.Message
	attempts int
	cause    error
}

type stubSink struct {
	mu      sync.Mutex
	entries []deadLetterEntry
	err     error
	onWrite func()
}

func (s *stubSink) DeadLetter(_ context.Context, msg kafka.Message, attempts int, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onWrite != nil {
		s.onWrite()
	}
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, deadLetterEntry{msg: msg, attempts: attempts, cause: cause})
	return nil
}

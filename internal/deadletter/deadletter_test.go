package deadletter

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	require.Equal(t, time.Minute, backoffDelay(time.Minute, 1))
	require.Equal(t, 2*time.Minute, backoffDelay(time.Minute, 2))
	require.Equal(t, 8*time.Minute, backoffDelay(time.Minute, 4))
	require.Equal(t, time.Hour, backoffDelay(time.Minute, 10))
	require.Equal(t, time.Hour, backoffDelay(time.Minute, 64))
}

func TestEntryFromMessageKeepsReplayData(t *testing.T) {
	msg := kafka.Message{
		Topic:     "activity_events",
		Partition: 2,
		Offset:    41,
		Key:       []byte("act-1"),
		Value:     []byte(`{"id":"act-1"}`),
		Headers:   []kafka.Header{{Key: "event_type", Value: []byte("activity.created")}},
	}

	entry := EntryFromMessage(msg, 5, errors.New("ai provider returned status 503"))
	require.Equal(t, "activity_events", entry.Topic)
	require.Equal(t, 5, entry.Attempts)
	require.Equal(t, "ai provider returned status 503", entry.Reason)
	require.Equal(t, int64(41), entry.Offset)
	require.Zero(t, entry.RetryCount)
	require.False(t, entry.Permanent)

	replay := entry.Message()
	require.Equal(t, msg.Key, replay.Key)
	require.Equal(t, msg.Value, replay.Value)
	require.ElementsMatch(t, []kafka.Header{
		{Key: "event_type", Value: []byte("activity.created")},
		{Key: HeaderReplays, Value: []byte("1")},
	}, replay.Headers)
	require.Empty(t, replay.Topic, "topic is chosen by the writer")
}

func TestReplayCountSurvivesRoundTrip(t *testing.T) {
	msg := kafka.Message{Topic: "activity_events", Key: []byte("act-2"), Value: []byte(`{}`)}
	cause := errors.New("malformed ai response")

	entry := EntryFromMessage(msg, 5, cause)
	for round := 1; round <= 3; round++ {
		replayed := entry.Message()
		replayed.Topic = "activity_events"

		entry = EntryFromMessage(replayed, 5, cause)
		require.Equal(t, round, entry.RetryCount)
		require.NotContains(t, entry.Headers, HeaderReplays)
	}
	require.Equal(t, "retry limit reached", quarantineReason(entry, 3))
}

func TestEntryFromMessageFlagsPermanentCauses(t *testing.T) {
	entry := EntryFromMessage(kafka.Message{Topic: "t", Value: []byte("not json")}, 1,
		fmt.Errorf("attempt 1: %w", permanentCause{errors.New("decode activity event")}))
	require.True(t, entry.Permanent)
	require.Equal(t, "permanent failure", quarantineReason(entry, 5))

	entry = EntryFromMessage(kafka.Message{Topic: "t"}, 1, errors.New("timeout"))
	require.False(t, entry.Permanent)
	require.Empty(t, quarantineReason(entry, 5))
}

func TestEntryFromMessageIgnoresBadReplayHeader(t *testing.T) {
	entry := EntryFromMessage(kafka.Message{
		Topic:   "t",
		Headers: []kafka.Header{{Key: HeaderReplays, Value: []byte("lots")}},
	}, 1, nil)
	require.Zero(t, entry.RetryCount)
}

func TestEntryFromMessageWithoutPayload(t *testing.T) {
	entry := EntryFromMessage(kafka.Message{Topic: "t"}, 1, nil)
	require.NotNil(t, entry.Payload)
	require.Equal(t, "unknown", entry.Reason)
}

type permanentCause struct{ err error }

func (p permanentCause) Error() string   { return p.err.Error() }
func (p permanentCause) Permanent() bool { return true }

//go:build integration

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"example.com/fitcoach/internal/broker"
	"example.com/fitcoach/internal/coaching"
	"example.com/fitcoach/internal/persistence/memory"
	"example.com/fitcoach/internal/testsupport"
)

func TestKafkaActivityEventProducesRecommendation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	topic := "activity_events"
	brokerAddr := testsupport.StartKafka(ctx, t, topic)

	producer := broker.NewProducer([]string{brokerAddr})
	defer producer.Close()
	publisher := broker.NewActivityPublisher(producer, broker.Config{Topic: topic})

	store := memory.NewRecommendationRepository()
	gateway := &stubGateway{answer: envelopeFor(t, wellFormedAnswer)}
	handler := NewRecommendationHandler(coaching.NewGenerator(gateway, nil), store, zaptest.NewLogger(t))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{brokerAddr},
		GroupID:     "recommendation-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	proc := NewProcessor(reader, handler, WithLogger(zaptest.NewLogger(t)), WithWorkers(2))
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	activity := runningActivity()
	require.NoError(t, publisher.PublishActivity(ctx, activity))

	require.Eventually(t, func() bool {
		rec, err := store.GetByActivity(ctx, activity.ID)
		return err == nil && rec != nil && rec.UserID == activity.UserID
	}, 60*time.Second, 500*time.Millisecond)
}

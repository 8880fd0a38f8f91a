package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

func TestChannelBus(t *testing.T) {
	ctx := context.Background()

	t.Run("PublishSubscribe", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		received := make(chan *domain.Message, 1)
		_, err := b.Subscribe(ctx, domain.TopicPatternDetected, func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		if err := b.Publish(ctx, domain.TopicPatternDetected, []byte(`{"id":"pat-1"}`)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		select {
		case msg := <-received:
			if string(msg.Payload) != `{"id":"pat-1"}` {
				t.Errorf("payload: %s", msg.Payload)
			}
			if msg.Topic != domain.TopicPatternDetected {
				t.Errorf("topic: %s", msg.Topic)
			}
			if msg.ID == "" {
				t.Error("message id must be set")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		received := make(chan *domain.Message, 1)
		_, err := b.Subscribe(ctx, domain.TopicAssessmentCritical, func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		if err := b.Publish(ctx, domain.TopicAssessmentCreated, []byte("x")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		select {
		case msg := <-received:
			t.Errorf("should not receive message for other topic: %+v", msg)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		var wg sync.WaitGroup
		wg.Add(2)
		for i := 0; i < 2; i++ {
			_, err := b.Subscribe(ctx, domain.TopicTransactionIngested, func(ctx context.Context, msg *domain.Message) error {
				wg.Done()
				return nil
			})
			if err != nil {
				t.Fatalf("Subscribe failed: %v", err)
			}
		}

		if err := b.Publish(ctx, domain.TopicTransactionIngested, []byte("tx")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("not all subscribers received the message")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		received := make(chan *domain.Message, 1)
		sub, err := b.Subscribe(ctx, domain.TopicPatternDetected, func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("Unsubscribe failed: %v", err)
		}

		b.Publish(ctx, domain.TopicPatternDetected, []byte("x"))

		select {
		case <-received:
			t.Error("unsubscribed handler should not receive messages")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("ClosedBusRejectsPublish", func(t *testing.T) {
		b := NewChannelBus(10)
		b.Close()

		if err := b.Publish(ctx, domain.TopicPatternDetected, []byte("x")); err == nil {
			t.Error("expected error publishing to closed bus")
		}
		if err := b.Ping(ctx); err == nil {
			t.Error("expected ping failure on closed bus")
		}
	})

	t.Run("RequestReplyTimeout", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		if _, err := b.Request(ctx, "nobody.listening", []byte("ping")); err == nil {
			t.Error("expected timeout with no responder")
		}
	})
}

func TestNewFactory(t *testing.T) {
	t.Run("Channel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()
		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("expected ChannelBus, got %T", b)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unknown bus type")
		}
	})
}

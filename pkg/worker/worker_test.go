package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"gitevents/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(value string) *string {
	return &value
}

func notificationMessage(t *testing.T, action events.Action) *message.Message {
	t.Helper()
	payload, err := json.Marshal(events.Notification{
		Provider: "github",
		Event:    "pull_request",
		Topic:    "events.merge",
		Record: events.Record{
			RequestID: strPtr("42"),
			Author:    strPtr("bob"),
			Action:    action,
			ToBranch:  strPtr("main"),
		},
	})
	require.NoError(t, err)
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("request_id", "delivery-1")
	return msg
}

// TestNotificationCodecDecode tests decoding and metadata fallbacks.
func TestNotificationCodecDecode(t *testing.T) {
	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"record":{"action":"PUSH","to_branch":"main"}}`))
	msg.Metadata.Set("provider", "github")
	msg.Metadata.Set("event", "push")
	msg.Metadata.Set("request_id", "abc")

	delivery, err := NotificationCodec{}.Decode("events.push", msg)
	require.NoError(t, err)
	assert.Equal(t, "github", delivery.Notification.Provider)
	assert.Equal(t, "push", delivery.Notification.Event)
	assert.Equal(t, "events.push", delivery.Notification.Topic)
	assert.Equal(t, events.ActionPush, delivery.Action())
	assert.Equal(t, "abc", delivery.RequestID())
	assert.Equal(t, msg.UUID, delivery.MessageID)
}

// TestNotificationCodecRejects tests malformed bodies and unknown actions.
func TestNotificationCodecRejects(t *testing.T) {
	_, err := NotificationCodec{}.Decode("t", message.NewMessage("1", []byte(`not json`)))
	assert.Error(t, err)

	_, err = NotificationCodec{}.Decode("t", message.NewMessage("2", []byte(`{"record":{"action":"DELETE"}}`)))
	assert.Error(t, err)
}

// TestWorkerDispatch tests topic handlers, action handlers and the fallback.
func TestWorkerDispatch(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	w := New(WithSubscriber(pubsub), WithConcurrency(2))

	var mu sync.Mutex
	seen := map[string]string{}
	done := make(chan struct{}, 3)
	record := func(name string) Handler {
		return func(ctx context.Context, d *Delivery) error {
			mu.Lock()
			seen[name] = d.RequestID()
			mu.Unlock()
			done <- struct{}{}
			return nil
		}
	}
	w.HandleTopic("events.merge", record("topic"))
	w.HandleTopic("events.other", record("other"))
	w.HandleAction(string(events.ActionPullRequest), record("action"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// gochannel drops messages published before a subscription exists.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, pubsub.Publish("events.merge", notificationMessage(t, events.ActionMerge)))
	require.NoError(t, pubsub.Publish("events.other", notificationMessage(t, events.ActionPullRequest)))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for handlers")
		}
	}
	cancel()
	require.NoError(t, <-errCh)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "42", seen["topic"])
	assert.Equal(t, "42", seen["other"])
	assert.NotContains(t, seen, "action")
}

// TestHandleMessageRetryPolicy tests ack and nack decisions.
func TestHandleMessageRetryPolicy(t *testing.T) {
	failing := func(ctx context.Context, d *Delivery) error { return errors.New("boom") }

	tests := []struct {
		name    string
		policy  RetryPolicy
		payload *message.Message
		wantAck bool
	}{
		{name: "no retry acks failures", policy: NoRetry{}, payload: notificationMessage(t, events.ActionMerge), wantAck: true},
		{name: "nack on handler error", policy: NackOnError{}, payload: notificationMessage(t, events.ActionMerge), wantAck: false},
		{name: "undecodable is acked", policy: NackOnError{}, payload: message.NewMessage("x", []byte("{")), wantAck: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(WithRetry(tt.policy))
			w.HandleTopic("events.merge", failing)
			w.handleMessage(context.Background(), "events.merge", tt.payload)

			if tt.wantAck {
				assertClosed(t, tt.payload.Acked(), "expected ack")
			} else {
				assertClosed(t, tt.payload.Nacked(), "expected nack")
			}
		})
	}
}

// TestRecovererMiddleware tests that handler panics become errors.
func TestRecovererMiddleware(t *testing.T) {
	w := New(WithRetry(NackOnError{}), WithMiddleware(Recoverer))
	w.HandleDefault(func(ctx context.Context, d *Delivery) error { panic("bad record") })

	msg := notificationMessage(t, events.ActionPush)
	w.handleMessage(context.Background(), "anything", msg)
	assertClosed(t, msg.Nacked(), "expected nack after panic")
}

// TestHandleTopicRespectsAllowedTopics tests that WithTopics limits handlers.
func TestHandleTopicRespectsAllowedTopics(t *testing.T) {
	w := New(WithTopics("events.push"))
	w.HandleTopic("events.merge", func(ctx context.Context, d *Delivery) error { return nil })

	assert.NotContains(t, w.topicHandlers, "events.merge")
	assert.Equal(t, []string{"events.push"}, w.topics)
}

// TestRunRequiresSubscriberAndTopics tests Run preconditions.
func TestRunRequiresSubscriberAndTopics(t *testing.T) {
	assert.Error(t, New().Run(context.Background()))

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	assert.Error(t, New(WithSubscriber(pubsub)).Run(context.Background()))
}

// TestBuildSubscriberConfigErrors tests that config errors are not retried.
func TestBuildSubscriberConfigErrors(t *testing.T) {
	start := time.Now()
	_, err := BuildSubscriber(SubscriberConfig{
		Driver: "kafka",
		Retry:  RetryConfig{Attempts: 5, DelayMS: 1000},
	}, nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	_, err = BuildSubscriber(SubscriberConfig{Driver: "carrier-pigeon"}, nil)
	assert.Error(t, err)

	sub, err := BuildSubscriber(SubscriberConfig{}, nil)
	require.NoError(t, err)
	assert.NoError(t, sub.Close())
}

func assertClosed(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	default:
		t.Fatal(msg)
	}
}

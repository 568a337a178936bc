package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// Worker subscribes to notification topics, decodes messages and dispatches
// them to handlers.
type Worker struct {
	subscriber  message.Subscriber
	codec       Codec
	retry       RetryPolicy
	logger      zerolog.Logger
	concurrency int
	topics      []string

	topicHandlers  map[string]Handler
	actionHandlers map[string]Handler
	fallback       Handler
	middleware     []Middleware
	allowedTopics  map[string]struct{}
}

// New creates a new Worker with the given options.
func New(opts ...Option) *Worker {
	w := &Worker{
		codec:          NotificationCodec{},
		retry:          NoRetry{},
		logger:         zerolog.Nop(),
		concurrency:    1,
		topicHandlers:  make(map[string]Handler),
		actionHandlers: make(map[string]Handler),
		allowedTopics:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleTopic registers a handler for a specific topic. When WithTopics was
// used, topics outside that set are refused.
func (w *Worker) HandleTopic(topic string, h Handler) {
	if h == nil || topic == "" {
		return
	}
	if len(w.allowedTopics) > 0 {
		if _, ok := w.allowedTopics[topic]; !ok {
			w.logger.Warn().Str("topic", topic).Msg("handler topic not subscribed")
			return
		}
	}
	w.topicHandlers[topic] = h
	w.topics = append(w.topics, topic)
}

// HandleAction registers a handler for records with the given action.
func (w *Worker) HandleAction(action string, h Handler) {
	if h == nil || action == "" {
		return
	}
	w.actionHandlers[action] = h
}

// HandleDefault registers the handler used when no topic or action handler matches.
func (w *Worker) HandleDefault(h Handler) {
	w.fallback = h
}

// Run subscribes to every topic and processes messages until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if w.subscriber == nil {
		return errors.New("subscriber is required")
	}
	if len(w.topics) == 0 {
		return errors.New("at least one topic is required")
	}

	topics := unique(w.topics)
	w.logger.Info().Strs("topics", topics).Int("concurrency", w.concurrency).Msg("worker started")
	defer func() { w.logger.Info().Msg("worker stopped") }()
	sem := make(chan struct{}, w.concurrency)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, topic := range topics {
		msgs, err := w.subscriber.Subscribe(ctx, topic)
		if err != nil {
			w.logger.Error().Err(err).Str("topic", topic).Msg("subscribe failed")
			return err
		}
		wg.Add(1)
		go func(topic string, ch <-chan *message.Message) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					sem <- struct{}{}
					wg.Add(1)
					go func(msg *message.Message) {
						defer wg.Done()
						defer func() { <-sem }()
						w.handleMessage(ctx, topic, msg)
					}(msg)
				}
			}
		}(topic, msgs)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// Close shuts down the subscriber.
func (w *Worker) Close() error {
	if w.subscriber == nil {
		return nil
	}
	return w.subscriber.Close()
}

func (w *Worker) handleMessage(ctx context.Context, topic string, msg *message.Message) {
	delivery, err := w.codec.Decode(topic, msg)
	if err != nil {
		w.logger.Warn().Err(err).Str("topic", topic).Str("message_id", msg.UUID).Msg("decode failed")
		w.settle(msg, w.retry.OnError(ctx, nil, err))
		return
	}

	logger := w.logger.With().
		Str("topic", topic).
		Str("request_id", delivery.RequestID()).
		Str("action", string(delivery.Action())).
		Logger()

	handler := w.topicHandlers[topic]
	if handler == nil {
		handler = w.actionHandlers[string(delivery.Action())]
	}
	if handler == nil {
		handler = w.fallback
	}
	if handler == nil {
		logger.Debug().Msg("no handler")
		msg.Ack()
		return
	}

	if err := w.wrap(handler)(logger.WithContext(ctx), delivery); err != nil {
		logger.Error().Err(err).Msg("handler failed")
		w.settle(msg, w.retry.OnError(ctx, delivery, err))
		return
	}
	msg.Ack()
}

func (w *Worker) settle(msg *message.Message, decision RetryDecision) {
	if decision.Nack {
		msg.Nack()
		return
	}
	msg.Ack()
}

func (w *Worker) wrap(h Handler) Handler {
	wrapped := h
	for i := len(w.middleware) - 1; i >= 0; i-- {
		wrapped = w.middleware[i](wrapped)
	}
	return wrapped
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/oportunidade/payhook/pkg/logger"
)

const defaultPublishTimeout = 5 * time.Second

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// PubSubQueue publishes work items to a topic and consumes them from a
// subscription. Retries are Nacked so the subscription's retry policy applies.
type PubSubQueue struct {
	pub            publisher
	sub            receiver
	publishTimeout time.Duration
	logg           *logger.Logger
}

// NewPubSubQueue wires a queue over Pub/Sub handles. Either handle may be nil
// when the process only produces or only consumes.
func NewPubSubQueue(topic *gcppubsub.Publisher, subscription *gcppubsub.Subscriber, maxOutstanding int, publishTimeout time.Duration, logg *logger.Logger) *PubSubQueue {
	var pub publisher
	if topic != nil {
		pub = &gcpPublisher{Publisher: topic}
	}
	var sub receiver
	if subscription != nil {
		if maxOutstanding > 0 {
			subscription.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
		}
		sub = subscription
	}
	return newPubSubQueue(pub, sub, publishTimeout, logg)
}

func newPubSubQueue(pub publisher, sub receiver, publishTimeout time.Duration, logg *logger.Logger) *PubSubQueue {
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &PubSubQueue{pub: pub, sub: sub, publishTimeout: publishTimeout, logg: logg}
}

func (q *PubSubQueue) Enqueue(ctx context.Context, item WorkItem) error {
	if q.pub == nil {
		return errors.New("pubsub publisher not configured")
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}

	res := q.pub.Publish(ctx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"external_id": item.ExternalID,
			"attempt":     strconv.Itoa(item.Attempt),
		},
	})
	if res == nil {
		return errors.New("publish result is nil")
	}

	publishCtx, cancel := context.WithTimeout(ctx, q.publishTimeout)
	defer cancel()
	if _, err := res.Get(publishCtx); err != nil {
		return fmt.Errorf("publish work item: %w", err)
	}
	return nil
}

// Consume ignores workers; concurrency is bounded by the subscriber's
// MaxOutstandingMessages.
func (q *PubSubQueue) Consume(ctx context.Context, _ int, handle Handler) error {
	if q.sub == nil {
		return errors.New("pubsub subscription not configured")
	}
	err := q.sub.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if q.deliver(msgCtx, msg.ID, msg.Data, handle) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// deliver reports whether the message should be acked.
func (q *PubSubQueue) deliver(ctx context.Context, messageID string, data []byte, handle Handler) bool {
	var item WorkItem
	if err := json.Unmarshal(data, &item); err != nil {
		q.logg.Error(q.logg.WithField(ctx, "message_id", messageID), "failed to decode work item", err)
		return true
	}
	return !handle(ctx, item).Retry
}

func (q *PubSubQueue) Depth() int {
	return -1
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"multipost/domain/model"
	"multipost/infrastructure/logger"
)

const (
	EventStateChanged    = "state_changed"
	EventOutcomeRecorded = "outcome_recorded"
)

// OutcomePublisher forwards pipeline events to a Pub/Sub topic. Delivery is
// best-effort; a failed publish is logged and never fails the pipeline.
type OutcomePublisher struct {
	client    *pubsub.Client
	topicName string

	once     sync.Once
	topic    *pubsub.Topic
	topicErr error
	pending  sync.WaitGroup
}

func NewOutcomePublisher(client *pubsub.Client, topicName string) *OutcomePublisher {
	return &OutcomePublisher{client: client, topicName: topicName}
}

// ensureTopic creates the topic on first use if it doesn't exist.
func (p *OutcomePublisher) ensureTopic(ctx context.Context) (*pubsub.Topic, error) {
	p.once.Do(func() {
		topic := p.client.Topic(p.topicName)
		exists, err := topic.Exists(ctx)
		if err != nil {
			p.topicErr = err
			return
		}
		if !exists {
			logger.GetLogger().WithField("topic", p.topicName).Info("Topic doesn't exist - creating it")
			if topic, err = p.client.CreateTopic(ctx, p.topicName); err != nil {
				p.topicErr = err
				return
			}
		}
		p.topic = topic
	})
	return p.topic, p.topicErr
}

func (p *OutcomePublisher) StateChanged(ctx context.Context, change model.StateChange) {
	p.publish(ctx, EventStateChanged, change.RequestID, change.PlatformID, change)
}

func (p *OutcomePublisher) OutcomeRecorded(ctx context.Context, outcome model.PublishOutcome) {
	p.publish(ctx, EventOutcomeRecorded, outcome.RequestID, outcome.PlatformID, outcome)
}

func (p *OutcomePublisher) publish(ctx context.Context, event, requestID string, platform model.PlatformID, body any) {
	lg := logger.GetLogger().WithField("event", event).WithField("request_id", requestID).WithField("platform", platform)
	ctx = context.WithoutCancel(ctx)
	topic, err := p.ensureTopic(ctx)
	if err != nil {
		lg.WithField("error", err).Error("Pub/Sub topic unavailable")
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		lg.WithField("error", err).Error("Failed to encode event")
		return
	}
	result := topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event":      event,
			"request_id": requestID,
			"platform":   string(platform),
		},
	})
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		getCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		serverID, err := result.Get(getCtx)
		if err != nil {
			lg.WithField("error", err).Error("Failed to publish event")
			return
		}
		lg.WithField("server ID", serverID).Debug("Message published")
	}()
}

// Close waits for in-flight publishes and stops the topic's goroutines.
func (p *OutcomePublisher) Close() {
	p.pending.Wait()
	if p.topic != nil {
		p.topic.Stop()
	}
}

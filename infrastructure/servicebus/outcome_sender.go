package servicebus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"multipost/domain/model"
	"multipost/infrastructure/logger"
)

type messageSender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// OutcomeSender queues every recorded outcome for downstream consumers.
// Pipeline state changes are not forwarded.
type OutcomeSender struct {
	mu     sync.Mutex
	sender messageSender
}

func NewOutcomeSender(client *azservicebus.Client, queue string) (*OutcomeSender, error) {
	sender, err := client.NewSender(queue, nil)
	if err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while making new sender service bus.")
		return nil, err
	}
	return &OutcomeSender{sender: sender}, nil
}

func (s *OutcomeSender) StateChanged(context.Context, model.StateChange) {}

func (s *OutcomeSender) OutcomeRecorded(ctx context.Context, outcome model.PublishOutcome) {
	lg := logger.GetLogger().WithField("request_id", outcome.RequestID).WithField("platform", outcome.PlatformID)
	body, err := json.Marshal(outcome)
	if err != nil {
		lg.WithField("error", err).Error("Failed to encode outcome")
		return
	}
	contentType := "application/json"
	subject := string(outcome.Status)
	messageID := outcome.RequestID + ":" + string(outcome.PlatformID)
	msg := &azservicebus.Message{
		Body:        body,
		ContentType: &contentType,
		Subject:     &subject,
		MessageID:   &messageID,
		ApplicationProperties: map[string]any{
			"request_id": outcome.RequestID,
			"platform":   string(outcome.PlatformID),
		},
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sender.SendMessage(sendCtx, msg, nil); err != nil {
		lg.WithField("error", err).Error("Error while sending message.")
	}
}

func (s *OutcomeSender) Close(ctx context.Context) error {
	err := s.sender.Close(ctx)
	if err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while closing sender.")
	}
	return err
}

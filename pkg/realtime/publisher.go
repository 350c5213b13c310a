package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pubnub "github.com/pubnub/go/v7"

	"github.com/stagedoor/stagedoor-backend/pkg/config"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

// Event is the payload pushed to a customer's private channel.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Publisher pushes realtime events to per-customer channels.
type Publisher interface {
	PublishToCustomer(ctx context.Context, customerID uuid.UUID, event Event) error
}

// PubNubPublisher implements Publisher on top of PubNub.
type PubNubPublisher struct {
	pn     *pubnub.PubNub
	logger *logger.Logger
}

var errPublishKeysRequired = errors.New("pubnub publish and subscribe keys are required")

// NewPubNubPublisher wires a PubNub client from config.
func NewPubNubPublisher(cfg config.PubNubConfig, logg *logger.Logger) (*PubNubPublisher, error) {
	if logg == nil {
		return nil, errors.New("realtime logger is required")
	}
	if strings.TrimSpace(cfg.PublishKey) == "" || strings.TrimSpace(cfg.SubscribeKey) == "" {
		return nil, errPublishKeysRequired
	}

	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey

	return &PubNubPublisher{
		pn:     pubnub.NewPubNub(pnConfig),
		logger: logg,
	}, nil
}

// PublishToCustomer pushes an event to the customer's private channel.
func (p *PubNubPublisher) PublishToCustomer(ctx context.Context, customerID uuid.UUID, event Event) error {
	if p == nil || p.pn == nil {
		return errors.New("realtime publisher not initialized")
	}
	channel := ChannelForCustomer(customerID)
	message := map[string]any{"type": event.Type}
	for k, v := range event.Data {
		message[k] = v
	}

	_, _, err := p.pn.PublishWithContext(ctx).
		Channel(channel).
		Message(message).
		Execute()
	if err != nil {
		ctx = p.logger.WithFields(ctx, map[string]any{"channel": channel, "event_type": event.Type})
		p.logger.Error(ctx, "publishing realtime event", err)
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// ChannelForCustomer returns the private channel name for a customer.
func ChannelForCustomer(customerID uuid.UUID) string {
	return fmt.Sprintf("customer-%s", customerID)
}

// NoopPublisher drops events. Used when realtime delivery is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishToCustomer(context.Context, uuid.UUID, Event) error { return nil }

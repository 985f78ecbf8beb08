package redis

import (
	"context"
	"encoding/json"
	"time"

	"scanguard/internal/domain/ports/adapter"
)

var _ adapter.NotificationSink = (*Notifier)(nil)

// Notifier fans events out over redis pub/sub. Subscribers (the excluded
// HTTP/websocket layer) listen on per-owner, per-job and admin channels.
type Notifier struct {
	client RedisClient
}

func NewNotifier(client RedisClient) *Notifier {
	return &Notifier{client: client}
}

type eventEnvelope struct {
	Event   string    `json:"event"`
	Ts      time.Time `json:"ts"`
	Payload any       `json:"payload,omitempty"`
}

func (n *Notifier) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(eventEnvelope{Event: event, Ts: time.Now(), Payload: payload})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, channel, data)
}

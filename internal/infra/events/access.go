package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/subgate/internal/domain/ledger"
)

const (
	RouteAuthorized = "access.authorized"
	RouteDenied     = "access.denied"
)

// AccessMessage: запись журнала в том виде, в каком её читают потребители.
type AccessMessage struct {
	MessageID      string    `json:"message_id"`
	EventID        int64     `json:"event_id"`
	SubscriptionID int64     `json:"subscription_id"`
	ServiceID      int64     `json:"service_id"`
	At             time.Time `json:"at"`
	Plate          string    `json:"plate,omitempty"`
	Method         string    `json:"verification_method"`
	Authorized     bool      `json:"authorized"`
	Reason         string    `json:"denial_reason,omitempty"`
	Station        string    `json:"station,omitempty"`
	Operator       string    `json:"operator,omitempty"`
}

// AccessPublisher превращает записи журнала в сообщения.
type AccessPublisher struct {
	sender Sender
}

func NewAccessPublisher(s Sender) *AccessPublisher { return &AccessPublisher{sender: s} }

func (p *AccessPublisher) PublishAccess(ctx context.Context, e ledger.Event) error {
	route, body, err := EncodeAccess(e)
	if err != nil {
		return err
	}
	return p.sender.Publish(ctx, route, body)
}

func (p *AccessPublisher) Close() error { return p.sender.Close() }

func EncodeAccess(e ledger.Event) (string, []byte, error) {
	route := RouteDenied
	if e.Authorized {
		route = RouteAuthorized
	}
	body, err := json.Marshal(AccessMessage{
		MessageID:      uuid.NewString(),
		EventID:        e.ID,
		SubscriptionID: e.SubscriptionID,
		ServiceID:      e.ServiceID,
		At:             e.At.UTC(),
		Plate:          e.Plate,
		Method:         string(e.Method),
		Authorized:     e.Authorized,
		Reason:         e.Reason,
		Station:        e.Station,
		Operator:       e.Operator,
	})
	return route, body, err
}

package polar

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedPayload marks bodies that passed signature checks but cannot be decoded.
var ErrMalformedPayload = errors.New("polar: malformed webhook payload")

type EventType string

const (
	EventCheckoutUpdated        EventType = "checkout.updated"
	EventSubscriptionCreated    EventType = "subscription.created"
	EventSubscriptionUpdated    EventType = "subscription.updated"
	EventSubscriptionRevoked    EventType = "subscription.revoked"
	EventSubscriptionUncanceled EventType = "subscription.uncanceled"
	EventOrderPaid              EventType = "order.paid"
	EventCustomerStateChanged   EventType = "customer.state_changed"
)

const CheckoutStatusSucceeded = "succeeded"

// Event is one verified delivery. Retries of the same logical event share ID.
type Event struct {
	ID      string          `json:"id"`
	Type    EventType       `json:"type"`
	Data    json.RawMessage `json:"data"`
	Payload Payload         `json:"-"`
}

// Payload is the closed set of event variants. Unhandled covers every type
// this service does not act on.
type Payload interface {
	EventType() EventType
	payload()
}

type CheckoutUpdated struct{ Checkout Checkout }

type SubscriptionCreated struct{ Subscription Subscription }

type SubscriptionUpdated struct{ Subscription Subscription }

type SubscriptionRevoked struct{ Subscription Subscription }

type SubscriptionUncanceled struct{ Subscription Subscription }

type OrderPaid struct{ Order Order }

type CustomerStateChanged struct{ Customer CustomerState }

type Unhandled struct{ Type EventType }

func (CheckoutUpdated) EventType() EventType        { return EventCheckoutUpdated }
func (SubscriptionCreated) EventType() EventType    { return EventSubscriptionCreated }
func (SubscriptionUpdated) EventType() EventType    { return EventSubscriptionUpdated }
func (SubscriptionRevoked) EventType() EventType    { return EventSubscriptionRevoked }
func (SubscriptionUncanceled) EventType() EventType { return EventSubscriptionUncanceled }
func (OrderPaid) EventType() EventType              { return EventOrderPaid }
func (CustomerStateChanged) EventType() EventType   { return EventCustomerStateChanged }
func (u Unhandled) EventType() EventType            { return u.Type }

func (CheckoutUpdated) payload()        {}
func (SubscriptionCreated) payload()    {}
func (SubscriptionUpdated) payload()    {}
func (SubscriptionRevoked) payload()    {}
func (SubscriptionUncanceled) payload() {}
func (OrderPaid) payload()              {}
func (CustomerStateChanged) payload()   {}
func (Unhandled) payload()              {}

// Metadata holds free-form key/values attached at checkout or subscription level.
type Metadata map[string]any

// String returns the trimmed string value for key, or "" for missing or
// non-string values.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

type Customer struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
}

type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Subscription struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	CustomerID        string     `json:"customer_id"`
	ProductID         string     `json:"product_id"`
	Customer          Customer   `json:"customer"`
	Product           *Product   `json:"product"`
	Metadata          Metadata   `json:"metadata"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end"`
}

// ExternalID is the identity key of the local subscriber.
func (s Subscription) ExternalID() string {
	return strings.TrimSpace(s.Customer.ExternalID)
}

// ResolvedCustomerID prefers the flat customer_id over the nested object.
func (s Subscription) ResolvedCustomerID() string {
	if id := strings.TrimSpace(s.CustomerID); id != "" {
		return id
	}
	return strings.TrimSpace(s.Customer.ID)
}

func (s Subscription) ResolvedProductID() string {
	if id := strings.TrimSpace(s.ProductID); id != "" {
		return id
	}
	if s.Product != nil {
		return strings.TrimSpace(s.Product.ID)
	}
	return ""
}

type Checkout struct {
	ID                 string        `json:"id"`
	Status             string        `json:"status"`
	CustomerID         string        `json:"customer_id"`
	CustomerEmail      string        `json:"customer_email"`
	CustomerExternalID string        `json:"customer_external_id"`
	ProductID          string        `json:"product_id"`
	SubscriptionID     string        `json:"subscription_id"`
	Subscription       *Subscription `json:"subscription"`
	Metadata           Metadata      `json:"metadata"`
}

type Order struct {
	ID             string   `json:"id"`
	Status         string   `json:"status"`
	BillingReason  string   `json:"billing_reason"`
	TotalAmount    int64    `json:"total_amount"`
	Currency       string   `json:"currency"`
	CustomerID     string   `json:"customer_id"`
	ProductID      string   `json:"product_id"`
	SubscriptionID string   `json:"subscription_id"`
	Customer       Customer `json:"customer"`
	Product        *Product `json:"product"`
	Metadata       Metadata `json:"metadata"`
}

type CustomerState struct {
	ID                  string                    `json:"id"`
	ExternalID          string                    `json:"external_id"`
	Email               string                    `json:"email"`
	Name                string                    `json:"name"`
	ActiveSubscriptions []CustomerSubscriptionRef `json:"active_subscriptions"`
}

type CustomerSubscriptionRef struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Status    string `json:"status"`
}

// ParseEvent decodes an already authenticated body. fallbackID is used when
// the envelope carries no id (the webhook-id header identifies the delivery).
func ParseEvent(payload []byte, fallbackID string) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ev.ID = strings.TrimSpace(ev.ID)
	if ev.ID == "" {
		ev.ID = strings.TrimSpace(fallbackID)
	}
	ev.Type = EventType(strings.TrimSpace(string(ev.Type)))
	if ev.ID == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedPayload)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}

	p, err := decodePayload(ev.Type, ev.Data)
	if err != nil {
		return nil, err
	}
	ev.Payload = p
	return &ev, nil
}

func decodePayload(t EventType, data json.RawMessage) (Payload, error) {
	switch t {
	case EventCheckoutUpdated:
		var c Checkout
		if err := decodeData(t, data, &c); err != nil {
			return nil, err
		}
		return CheckoutUpdated{Checkout: c}, nil
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionRevoked, EventSubscriptionUncanceled:
		var s Subscription
		if err := decodeData(t, data, &s); err != nil {
			return nil, err
		}
		switch t {
		case EventSubscriptionCreated:
			return SubscriptionCreated{Subscription: s}, nil
		case EventSubscriptionUpdated:
			return SubscriptionUpdated{Subscription: s}, nil
		case EventSubscriptionRevoked:
			return SubscriptionRevoked{Subscription: s}, nil
		default:
			return SubscriptionUncanceled{Subscription: s}, nil
		}
	case EventOrderPaid:
		var o Order
		if err := decodeData(t, data, &o); err != nil {
			return nil, err
		}
		return OrderPaid{Order: o}, nil
	case EventCustomerStateChanged:
		var cs CustomerState
		if err := decodeData(t, data, &cs); err != nil {
			return nil, err
		}
		return CustomerStateChanged{Customer: cs}, nil
	default:
		return Unhandled{Type: t}, nil
	}
}

func decodeData(t EventType, data json.RawMessage, dst any) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return fmt.Errorf("%w: %s event without data", ErrMalformedPayload, t)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: decode %s data: %v", ErrMalformedPayload, t, err)
	}
	return nil
}

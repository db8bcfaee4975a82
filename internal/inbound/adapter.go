// Package inbound normalizes provider webhook payloads into platform-neutral
// events. Each platform registers an Adapter; the hub picks one by the
// channel's platform and never looks inside raw payloads itself.
package inbound

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

var (
	// ErrValidation marks a payload the adapter recognized as malformed.
	ErrValidation = errors.New("inbound: invalid payload")
	// ErrNotImplemented marks a platform with no registered adapter.
	ErrNotImplemented = errors.New("inbound: no adapter for platform")
)

// Payload carries the raw webhook body in whichever encoding the provider
// used. Exactly one of JSON or Form is set.
type Payload struct {
	JSON []byte
	Form url.Values
}

// EventKind separates new-content events from delivery-status callbacks.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventStatus  EventKind = "status"
)

// Event is the normalized result of adapting one webhook payload.
//
// For EventMessage: SenderID, Content, MessageKind and Timestamp are set.
// For EventStatus: ExternalMessageID and DeliveryStatus identify the message
// and its new state; RawStatus keeps the provider's original word for the
// status history.
type Event struct {
	Kind EventKind

	ExternalMessageID string
	SenderID          string
	SenderName        string
	Timestamp         time.Time
	MessageKind       model.MessageKind
	Content           string

	RawStatus      string
	DeliveryStatus *model.DeliveryStatus

	// Skip marks payloads that validate but carry nothing to persist,
	// such as echoes of our own outbound sends.
	Skip bool

	Metadata map[string]any
}

// Adapter turns one platform's webhook payloads into Events.
type Adapter interface {
	Platform() model.Platform
	// Validate rejects payloads missing the platform's required fields.
	// A payload that fails validation is never partially processed.
	Validate(p Payload) error
	// Extract normalizes a validated payload. Implementations may assume
	// Validate passed.
	Extract(p Payload) (*Event, error)
}

// Registry maps platforms to adapters. Registration happens at startup;
// lookups are concurrent.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.Platform]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[model.Platform]Adapter{}}
}

// Register adds an adapter, replacing any previous one for the platform.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

// Get returns the adapter for a platform, or ErrNotImplemented.
func (r *Registry) Get(platform model.Platform) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platform]
	if !ok {
		return nil, ErrNotImplemented
	}
	return a, nil
}

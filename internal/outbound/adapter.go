// Package outbound sends locally authored messages to the external platforms
// and annotates the outcome onto the message. Send failures are data, not
// errors: the MessageSender never fails its caller because a provider did.
package outbound

import (
	"context"
	"sync"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

// SendStatus is the coarse outcome of one platform send.
type SendStatus string

const (
	SendSuccess SendStatus = "success"
	SendError   SendStatus = "error"
)

// SendResult is the normalized outcome of a platform send attempt.
type SendResult struct {
	Status         SendStatus
	ExternalID     string
	PlatformStatus string
	To             string
	From           string
	Err            string
	ErrCode        string
	ErrType        string
}

func errorResult(errType, msg string) SendResult {
	return SendResult{Status: SendError, Err: msg, ErrType: errType}
}

// Error type vocabulary recorded in message metadata.
const (
	errTypeInvalidConfig  = "invalid_config"
	errTypeRequestFailed  = "request_failed"
	errTypeAPIError       = "api_error"
	errTypeNotImplemented = "not_implemented"
)

// Adapter sends one message through one platform.
type Adapter interface {
	Platform() model.Platform
	// ValidateChannelConfig reports whether the channel's credential map
	// carries the provider's required keys. Missing config is reported,
	// never thrown.
	ValidateChannelConfig(channel *model.Channel) bool
	Send(ctx context.Context, channel *model.Channel, chat *model.Chat, msg *model.Message) SendResult
}

// Registry maps platforms to outbound adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.Platform]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[model.Platform]Adapter{}}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

// Get returns the adapter for a platform; ok is false when none is
// registered.
func (r *Registry) Get(platform model.Platform) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platform]
	return a, ok
}

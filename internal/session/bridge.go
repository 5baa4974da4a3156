// Package session translates authentication transitions into cache session
// calls.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"example.com/coachcontext/internal/cache"
	"example.com/coachcontext/internal/consumer"
	"example.com/coachcontext/internal/domain"
	"example.com/coachcontext/internal/events"
)

// ErrMissingClientID is returned when neither a client id nor a user id can
// key the session.
var ErrMissingClientID = errors.New("client id is required")

// Option configures optional behaviour for the Bridge.
type Option func(*Bridge)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// Bridge drives the per-client caches held by a registry.
type Bridge struct {
	registry *cache.Registry
	logger   *log.Logger
}

// NewBridge constructs a Bridge over registry.
func NewBridge(registry *cache.Registry, opts ...Option) *Bridge {
	b := &Bridge{
		registry: registry,
		logger:   log.New(log.Writer(), "[session] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SignedIn opens the session for userID on clientID, replacing a session
// another user holds there. An empty clientID keys the session by user. attrs
// may be nil.
func (b *Bridge) SignedIn(clientID, userID string, attrs *domain.ProfileAttributes) error {
	key, err := clientKey(clientID, userID)
	if err != nil {
		return err
	}
	return b.registry.Get(key).StartSessionWithProfile(userID, overlay(attrs))
}

// Claim is SignedIn for callers that must not sign another user out. It
// returns cache.ErrNotOwner while a different user holds clientID.
func (b *Bridge) Claim(clientID, userID string, attrs *domain.ProfileAttributes) error {
	key, err := clientKey(clientID, userID)
	if err != nil {
		return err
	}
	return b.registry.Get(key).ClaimSession(userID, overlay(attrs))
}

// SignedOut ends the session held for clientID, if any.
func (b *Bridge) SignedOut(clientID string) {
	b.registry.Release(clientID)
}

// ProfileChanged feeds new profile attributes into future snapshots of the
// session on clientID. A non-empty userID must own that session.
func (b *Bridge) ProfileChanged(clientID, userID string, attrs domain.ProfileAttributes) error {
	c, ok := b.registry.Lookup(clientID)
	if !ok {
		return cache.ErrNoSession
	}
	return c.UpdateProfileAs(userID, attrs)
}

// Handle applies one session event from Kafka. Unknown event types are
// ignored so the topic can carry events for other consumers.
func (b *Bridge) Handle(_ context.Context, msg consumer.Message) error {
	switch msg.EventType {
	case events.TypeSessionStarted:
		var evt events.SessionStarted
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		var attrs *domain.ProfileAttributes
		if evt.Profile != nil {
			converted := toDomain(*evt.Profile)
			attrs = &converted
		}
		return b.SignedIn(clientFromMessage(evt.ClientID, msg), evt.UserID, attrs)

	case events.TypeSessionEnded:
		var evt events.SessionEnded
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		clientID := clientFromMessage(evt.ClientID, msg)
		if clientID == "" {
			clientID = evt.UserID
		}
		if !b.ownsSession(clientID, evt.UserID) {
			b.logger.Printf("ignoring %s for client %s: user %s is not signed in there", msg.EventType, clientID, evt.UserID)
			return nil
		}
		b.SignedOut(clientID)
		return nil

	case events.TypeProfileUpdated:
		var evt events.ProfileUpdated
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		clientID := clientFromMessage(evt.ClientID, msg)
		if clientID == "" {
			clientID = evt.UserID
		}
		if !b.ownsSession(clientID, evt.UserID) {
			b.logger.Printf("ignoring %s for client %s: user %s is not signed in there", msg.EventType, clientID, evt.UserID)
			return nil
		}
		if err := b.ProfileChanged(clientID, toDomain(evt.Profile)); err != nil {
			if errors.Is(err, cache.ErrNoSession) {
				b.logger.Printf("ignoring %s for client %s: no active session", msg.EventType, clientID)
				return nil
			}
			return err
		}
		return nil

	default:
		return nil
	}
}

// ownsSession reports whether an event naming userID may act on the session
// of clientID. Events without a user id always may.
func (b *Bridge) ownsSession(clientID, userID string) bool {
	if strings.TrimSpace(userID) == "" {
		return true
	}
	c, ok := b.registry.Lookup(clientID)
	if !ok {
		return true
	}
	current := c.State().UserID
	return current == "" || current == userID
}

func clientKey(clientID, userID string) (string, error) {
	if key := strings.TrimSpace(clientID); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(userID); key != "" {
		return key, nil
	}
	return "", ErrMissingClientID
}

func overlay(attrs *domain.ProfileAttributes) domain.ProfileAttributes {
	if attrs == nil {
		return domain.ProfileAttributes{}
	}
	return *attrs
}

func clientFromMessage(clientID string, msg consumer.Message) string {
	if clientID = strings.TrimSpace(clientID); clientID != "" {
		return clientID
	}
	return strings.TrimSpace(string(msg.Key))
}

func toDomain(attrs events.ProfileAttributes) domain.ProfileAttributes {
	return domain.ProfileAttributes{
		DisplayName:     attrs.DisplayName,
		Units:           attrs.Units,
		HeightCm:        attrs.HeightCm,
		GoalWeightKg:    attrs.GoalWeightKg,
		ExperienceLevel: attrs.ExperienceLevel,
	}
}

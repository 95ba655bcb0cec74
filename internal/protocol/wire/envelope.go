// Package wire defines the versioned message envelope and the Intent/Event
// vocabulary exchanged between the ZaguanBlade frontend and its native
// backend process.
//
// The channel model is deliberately asymmetric: outbound Intents travel over
// a single invoke-style dispatch call that acknowledges receipt, while
// inbound Events arrive on one shared broadcast stream. There is no response
// channel; a response is just an Event whose CausalityID equals the id of the
// Intent that caused it.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/version"
	"github.com/google/uuid"
)

// ProtocolName identifies the envelope protocol on the wire.
const ProtocolName = "zaguan-blade"

// Version is the semantic protocol version declared on every envelope.
type Version struct {
	// Major is the semver major component.
	Major uint `json:"major"`
	// Minor is the semver minor component.
	Minor uint `json:"minor"`
	// Patch is the semver patch component.
	Patch uint `json:"patch"`
}

// CurrentVersion returns the protocol version of this build.
func CurrentVersion() Version {
	return Version{
		Major: version.AppMajor,
		Minor: version.AppMinor,
		Patch: version.AppPatch,
	}
}

// String implements fmt.Stringer.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare orders two versions: -1 when v is lower than other, 0 when equal,
// +1 when higher.
func (v Version) Compare(other Version) int {
	pairs := [][2]uint{
		{v.Major, other.Major},
		{v.Minor, other.Minor},
		{v.Patch, other.Patch},
	}
	for _, p := range pairs {
		if p[0] < p[1] {
			return -1
		}
		if p[0] > p[1] {
			return 1
		}
	}
	return 0
}

// Domain scopes an Intent or Event to one functional area of the app.
type Domain string

const (
	DomainChat     Domain = "chat"
	DomainEditor   Domain = "editor"
	DomainFile     Domain = "file"
	DomainWorkflow Domain = "workflow"
	DomainTerminal Domain = "terminal"
	DomainHistory  Domain = "history"
	DomainLanguage Domain = "language"
	DomainSystem   Domain = "system"
)

// Envelope wraps every outbound message.
type Envelope struct {
	// Protocol is always ProtocolName.
	Protocol string `json:"protocol"`
	// Version is the protocol version of the sending client.
	Version Version `json:"version"`
	// Domain scopes the wrapped intent.
	Domain Domain `json:"domain"`
	// Message is the intent payload with delivery metadata.
	Message IntentEnvelope `json:"message"`
}

// IntentEnvelope carries one Intent plus its delivery metadata.
type IntentEnvelope struct {
	// ID is the unique intent id. Events caused by this intent carry it back
	// as their CausalityID.
	ID string `json:"id"`
	// Timestamp is a wall-clock timestamp in milliseconds since epoch.
	Timestamp int64 `json:"timestamp"`
	// IdempotencyKey is a caller-supplied token allowing the backend to
	// deduplicate retried intents. Empty means no key; the client never
	// deduplicates locally.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	// Intent is the command payload.
	Intent Intent `json:"intent"`
}

// MarshalJSON flattens the intent into a JSON object carrying its "type"
// discriminator.
func (e IntentEnvelope) MarshalJSON() ([]byte, error) {
	type alias struct {
		ID             string          `json:"id"`
		Timestamp      int64           `json:"timestamp"`
		IdempotencyKey string          `json:"idempotency_key,omitempty"`
		Intent         json.RawMessage `json:"intent"`
	}
	intent, err := encodeTagged("type", string(e.Intent.intentType()), e.Intent)
	if err != nil {
		return nil, err
	}
	return json.Marshal(alias{
		ID:             e.ID,
		Timestamp:      e.Timestamp,
		IdempotencyKey: e.IdempotencyKey,
		Intent:         intent,
	})
}

// EventEnvelope is the inbound counterpart of Envelope.
type EventEnvelope struct {
	// ID is the unique event id.
	ID string `json:"id"`
	// Timestamp is a wall-clock timestamp in milliseconds since epoch.
	Timestamp int64 `json:"timestamp"`
	// CausalityID is the id of the Intent this event responds to. Empty when
	// the event is unsolicited. This is the sole correlation mechanism.
	CausalityID string `json:"causality_id,omitempty"`
	// Event is the decoded payload.
	Event Event `json:"-"`
}

// Option customizes an envelope under construction.
type Option func(*IntentEnvelope)

// WithIdempotencyKey attaches a caller-supplied idempotency key.
func WithIdempotencyKey(key string) Option {
	return func(e *IntentEnvelope) { e.IdempotencyKey = key }
}

// WithIntentID pins the intent id instead of generating a fresh one.
//
// The correlator uses this to know the causality id before dispatching.
func WithIntentID(id string) Option {
	return func(e *IntentEnvelope) { e.ID = id }
}

// NewEnvelope builds an outbound envelope for one intent, stamping a fresh
// UUID and the current timestamp.
//
// This is purely a constructor: it performs no I/O and has no failure modes.
// Malformed input is a programmer error, not a runtime condition.
func NewEnvelope(domain Domain, intent Intent, opts ...Option) Envelope {
	msg := IntentEnvelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Intent:    intent,
	}
	for _, opt := range opts {
		opt(&msg)
	}
	return Envelope{
		Protocol: ProtocolName,
		Version:  CurrentVersion(),
		Domain:   domain,
		Message:  msg,
	}
}

// encodeTagged marshals v and injects a discriminator field.
func encodeTagged(key, tag string, v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m[key] = tag
	return json.Marshal(m)
}

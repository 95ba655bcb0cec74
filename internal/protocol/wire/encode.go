package wire

import "encoding/json"

// MarshalJSON flattens the event into a JSON object carrying its "type"
// discriminator. This is the mirror of DecodeEventEnvelope and exists for
// backends (real or in-process fakes) emitting events toward the client.
func (e EventEnvelope) MarshalJSON() ([]byte, error) {
	type alias struct {
		ID          string          `json:"id"`
		Timestamp   int64           `json:"timestamp"`
		CausalityID string          `json:"causality_id,omitempty"`
		Event       json.RawMessage `json:"event"`
	}
	event, err := encodeTagged("type", string(e.Event.eventType()), e.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(alias{
		ID:          e.ID,
		Timestamp:   e.Timestamp,
		CausalityID: e.CausalityID,
		Event:       event,
	})
}

// Structured converts the envelope to the generic map form the transport
// layer carries.
func (e EventEnvelope) Structured() (map[string]any, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalJSON encodes the nested backend error with its "kind" tag.
func (f IntentFailed) MarshalJSON() ([]byte, error) {
	errRaw, err := EncodeBackendError(f.Error)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Error json.RawMessage `json:"error"`
	}{Error: errRaw})
}

// EncodeBackendError marshals a backend error with its "kind" discriminator.
func EncodeBackendError(e BackendError) (json.RawMessage, error) {
	return encodeTagged("kind", string(e.Kind()), e)
}

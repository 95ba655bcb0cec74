package wire

import "encoding/json"

// DecodeEventEnvelope parses a structured inbound value into a typed event
// envelope.
//
// The transport delivers already-structured objects, so decoding is a
// structural pass-through plus variant matching on the event "type" tag.
// Unrecognized event types return ok == false and must be ignored by
// callers, never treated as an error: the backend may be newer than this
// client.
func DecodeEventEnvelope(v any) (EventEnvelope, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return EventEnvelope{}, false
	}
	var head struct {
		ID          string          `json:"id"`
		Timestamp   int64           `json:"timestamp"`
		CausalityID string          `json:"causality_id"`
		Event       json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return EventEnvelope{}, false
	}
	event, ok := DecodeEvent(head.Event)
	if !ok {
		return EventEnvelope{}, false
	}
	return EventEnvelope{
		ID:          head.ID,
		Timestamp:   head.Timestamp,
		CausalityID: head.CausalityID,
		Event:       event,
	}, true
}

// DecodeEvent decodes one event object by its "type" discriminator.
//
// Unknown types return ok == false.
func DecodeEvent(raw json.RawMessage) (Event, bool) {
	var tag struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, false
	}

	switch tag.Type {
	case EventMessageDelta:
		return decodeAs[MessageDelta](raw)
	case EventReasoningDelta:
		return decodeAs[ReasoningDelta](raw)
	case EventToolUpdate:
		return decodeAs[ToolUpdate](raw)
	case EventTerminalOutput:
		return decodeAs[TerminalOutput](raw)
	case EventTerminalSpawned:
		return decodeAs[TerminalSpawned](raw)
	case EventTerminalExited:
		return decodeAs[TerminalExited](raw)
	case EventFileContents:
		return decodeAs[FileContents](raw)
	case EventDirListing:
		return decodeAs[DirListing](raw)
	case EventWorkspaceStatus:
		return decodeAs[WorkspaceStatus](raw)
	case EventHistoryEntries:
		return decodeAs[HistoryEntries](raw)
	case EventSymbolsResult:
		return decodeAs[SymbolsResult](raw)
	case EventHoverResult:
		return decodeAs[HoverResult](raw)
	case EventPong:
		return decodeAs[Pong](raw)
	case EventProtocolVersion:
		return decodeAs[ProtocolVersion](raw)
	case EventIntentFailed:
		return decodeIntentFailed(raw)
	default:
		return nil, false
	}
}

func decodeAs[E Event](raw json.RawMessage) (Event, bool) {
	var event E
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, false
	}
	return event, true
}

// decodeIntentFailed decodes the nested backend error by its "kind" tag.
//
// An IntentFailed carrying an unknown error kind still decodes: the error is
// represented as Internal so the failure is surfaced rather than dropped.
func decodeIntentFailed(raw json.RawMessage) (Event, bool) {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == nil {
		return nil, false
	}
	backendErr, ok := DecodeBackendError(body.Error)
	if !ok {
		return nil, false
	}
	return IntentFailed{Error: backendErr}, true
}

// DecodeBackendError decodes one backend error object by its "kind" tag.
func DecodeBackendError(raw json.RawMessage) (BackendError, bool) {
	var tag struct {
		Kind    ErrorKind `json:"kind"`
		Message string    `json:"message"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, false
	}

	switch tag.Kind {
	case ErrKindValidation:
		return decodeErrAs[ValidationError](raw)
	case ErrKindPermissionDenied:
		return PermissionDenied{}, true
	case ErrKindNotFound:
		return decodeErrAs[ResourceNotFound](raw)
	case ErrKindConflict:
		return decodeErrAs[Conflict](raw)
	case ErrKindInternal:
		return decodeErrAs[Internal](raw)
	case ErrKindVersionMismatch:
		return decodeErrAs[VersionMismatch](raw)
	case ErrKindTimeout:
		return decodeErrAs[Timeout](raw)
	case ErrKindRateLimited:
		return decodeErrAs[RateLimited](raw)
	default:
		// Unknown kinds surface as Internal so the failure is not silently
		// swallowed while a caller is awaiting it.
		return Internal{Message: "unknown error kind: " + string(tag.Kind) + " " + tag.Message}, true
	}
}

func decodeErrAs[E BackendError](raw json.RawMessage) (BackendError, bool) {
	var e E
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	return e, true
}

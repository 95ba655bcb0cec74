package terminal

import (
	"strconv"
	"strings"
)

// maxMarkerLen bounds how long an unterminated marker candidate is held
// before being given up on and emitted as plain output. Real markers carry a
// UUID and an exit code and stay well under this.
const maxMarkerLen = 256

// parserCallbacks receive the demultiplexed stream.
type parserCallbacks struct {
	// onOutput receives visible output text, attributed to the currently
	// active command (empty callID when no command is active).
	onOutput func(callID, text string)
	// onStart fires when a CMD_START marker is observed.
	onStart func(callID string)
	// onExit fires when a CMD_EXIT marker is observed.
	onExit func(callID string, exitCode int)
}

// markerParser is a streaming scanner over raw shell output.
//
// Markers can arrive split across two raw-output deliveries at any byte
// position, so the parser holds a carry-over buffer between Feed calls:
// any trailing bytes that could still become a marker are withheld from
// output until the next delivery disambiguates them.
type markerParser struct {
	callbacks parserCallbacks

	carry  string
	active string
}

func newMarkerParser(callbacks parserCallbacks) *markerParser {
	return &markerParser{callbacks: callbacks}
}

// ActiveCallID returns the command currently claiming visible output.
func (p *markerParser) ActiveCallID() string { return p.active }

// Feed consumes one raw output delivery.
func (p *markerParser) Feed(data string) {
	buf := p.carry + data
	p.carry = ""

	for buf != "" {
		idx := strings.Index(buf, oscPrefix)
		if idx == -1 {
			// No full marker prefix. Withhold a trailing partial prefix, if
			// any, and emit the rest.
			hold := partialPrefixLen(buf)
			p.emitOutput(buf[:len(buf)-hold])
			p.carry = buf[len(buf)-hold:]
			return
		}

		p.emitOutput(buf[:idx])
		buf = buf[idx:]

		end := strings.Index(buf, oscBell)
		if end == -1 {
			if len(buf) > maxMarkerLen {
				// Unterminated garbage; stop treating it as a marker.
				p.emitOutput(buf)
				return
			}
			p.carry = buf
			return
		}

		p.handlePayload(buf[len(oscPrefix):end])
		buf = buf[end+1:]
	}
}

// handlePayload interprets one marker payload.
func (p *markerParser) handlePayload(payload string) {
	switch {
	case strings.HasPrefix(payload, payloadStart):
		callID := payload[len(payloadStart):]
		p.active = callID
		if p.callbacks.onStart != nil {
			p.callbacks.onStart(callID)
		}
	case strings.HasPrefix(payload, payloadExit):
		rest := payload[len(payloadExit):]
		callID, codeStr, ok := strings.Cut(rest, ";")
		if !ok {
			return
		}
		exitCode, err := strconv.Atoi(codeStr)
		if err != nil {
			return
		}
		if p.active == callID {
			p.active = ""
		}
		if p.callbacks.onExit != nil {
			p.callbacks.onExit(callID, exitCode)
		}
	default:
		// Some other OSC 633 payload (e.g. editor shell integration); not
		// ours, not rendered, dropped.
	}
}

func (p *markerParser) emitOutput(text string) {
	if text == "" {
		return
	}
	if p.callbacks.onOutput != nil {
		p.callbacks.onOutput(p.active, text)
	}
}

// partialPrefixLen returns the length of the longest suffix of buf that is a
// proper prefix of the marker prefix.
func partialPrefixLen(buf string) int {
	max := len(oscPrefix) - 1
	if max > len(buf) {
		max = len(buf)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(buf, oscPrefix[:n]) {
			return n
		}
	}
	return 0
}

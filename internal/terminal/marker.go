// Package terminal runs many logical commands through one long-lived
// backend-owned shell session.
//
// Spawning a fresh process per command is too slow for chat-driven tool
// calls, so commands share one interactive shell. Boundaries inside the
// shell's continuous byte stream are delimited with out-of-band markers: an
// OSC escape sequence that terminals do not render, carrying a private
// payload and terminated by a bell character.
package terminal

import (
	"fmt"
	"strings"
)

// Marker wire format: ESC ] 633 ; <payload> BEL, where payload is
// BLADE_CMD_START=<callId> or BLADE_CMD_EXIT=<callId>;<exitCode>.
const (
	oscPrefix = "\x1b]633;"
	oscBell   = "\x07"

	payloadStart = "BLADE_CMD_START="
	payloadExit  = "BLADE_CMD_EXIT="
)

// StartMarker returns the raw marker bytes announcing a command start.
func StartMarker(callID string) string {
	return oscPrefix + payloadStart + callID + oscBell
}

// ExitMarker returns the raw marker bytes announcing a command exit.
func ExitMarker(callID string, exitCode int) string {
	return fmt.Sprintf("%s%s%s;%d%s", oscPrefix, payloadExit, callID, exitCode, oscBell)
}

// commandLine builds the single shell line that runs one command wrapped in
// its markers. The start marker, optional directory change, the command, and
// the exit capture are joined by semicolons so the shell executes them as
// one sequential unit; `$?` in the exit printf observes the command's own
// status because printf runs immediately after it.
func commandLine(callID, command, cwd string) string {
	parts := make([]string, 0, 4)
	parts = append(parts,
		fmt.Sprintf(`printf '\033]633;%s%s\007'`, payloadStart, callID))
	if cwd != "" {
		parts = append(parts, "cd "+shellQuote(cwd))
	}
	parts = append(parts, command)
	parts = append(parts,
		fmt.Sprintf(`printf '\033]633;%s%s;%%d\007' "$?"`, payloadExit, callID))
	return strings.Join(parts, "; ") + "\n"
}

// shellQuote single-quotes s for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

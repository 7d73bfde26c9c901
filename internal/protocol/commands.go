package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CommandType identifies inbound websocket command variants.
type CommandType string

const (
	CmdStartSession        CommandType = "start_session"
	CmdCompatibilityUpdate CommandType = "request_compatibility_update"
	CmdPing                CommandType = "ping"
)

// ErrUnsupportedCommand marks command types outside the known set.
// Callers ignore these rather than treating them as protocol errors.
var ErrUnsupportedCommand = errors.New("unsupported command type")

type commandEnvelope struct {
	Type CommandType `json:"type"`
}

// Command is a parsed inbound client command.
type Command struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	MatchID   string      `json:"match_id,omitempty"`
}

// ParseCommand decodes one inbound websocket message.
func ParseCommand(raw []byte) (Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Command{}, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case CmdStartSession, CmdCompatibilityUpdate, CmdPing:
		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return Command{}, err
		}
		return cmd, nil
	default:
		return Command{}, ErrUnsupportedCommand
	}
}

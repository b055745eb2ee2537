package chessdto

import "github.com/park285/cheese-chess-server/internal/chess"

// CommandType discriminates client commands.
type CommandType string

const (
	CommandConnect   CommandType = "CONNECT"
	CommandMakeMove  CommandType = "MAKE_MOVE"
	CommandLeave     CommandType = "LEAVE"
	CommandResign    CommandType = "RESIGN"
	CommandHighlight CommandType = "HIGHLIGHT"
)

// Known reports whether t is a command the server understands.
func (t CommandType) Known() bool {
	switch t {
	case CommandConnect, CommandMakeMove, CommandLeave, CommandResign, CommandHighlight:
		return true
	}
	return false
}

// Command is one client frame. Move is set for MAKE_MOVE, Position for HIGHLIGHT.
type Command struct {
	CommandType CommandType     `json:"commandType"`
	AuthToken   string          `json:"authToken"`
	GameID      int             `json:"gameID"`
	Move        *chess.Move     `json:"move,omitempty"`
	Position    *chess.Position `json:"position,omitempty"`
}

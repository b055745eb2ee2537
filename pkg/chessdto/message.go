package chessdto

import "github.com/park285/cheese-chess-server/internal/chess"

// ServerMessageType discriminates server frames.
type ServerMessageType string

const (
	MessageLoadGame     ServerMessageType = "LOAD_GAME"
	MessageNotification ServerMessageType = "NOTIFICATION"
	MessageError        ServerMessageType = "ERROR"
)

// Snapshot is the client view of a match.
type Snapshot struct {
	GameID      int          `json:"gameID"`
	Name        string       `json:"gameName"`
	WhiteUser   string       `json:"whiteUsername,omitempty"`
	BlackUser   string       `json:"blackUsername,omitempty"`
	Board       *chess.Board `json:"board"`
	Turn        chess.Color  `json:"turn"`
	FEN         string       `json:"fen"`
	Status      string       `json:"status"`
	Over        bool         `json:"over"`
	Result      string       `json:"result,omitempty"`
	Termination string       `json:"termination,omitempty"`
	MovesSAN    []string     `json:"moves"`
}

// ServerMessage is one server frame.
type ServerMessage struct {
	ServerMessageType ServerMessageType `json:"serverMessageType"`
	Game              *Snapshot         `json:"game,omitempty"`
	Highlight         []chess.Move      `json:"highlight,omitempty"`
	Message           string            `json:"message,omitempty"`
	ErrorMessage      string            `json:"errorMessage,omitempty"`
}

func LoadGame(s *Snapshot) *ServerMessage {
	return &ServerMessage{ServerMessageType: MessageLoadGame, Game: s}
}

// LoadGameHighlight carries a snapshot plus the legal moves of one square.
// An empty list is omitted from the frame.
func LoadGameHighlight(s *Snapshot, moves []chess.Move) *ServerMessage {
	return &ServerMessage{ServerMessageType: MessageLoadGame, Game: s, Highlight: moves}
}

func Notification(text string) *ServerMessage {
	return &ServerMessage{ServerMessageType: MessageNotification, Message: text}
}

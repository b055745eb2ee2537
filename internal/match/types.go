package match

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/park285/cheese-chess-server/internal/chess"
)

var (
	ErrNotFound = errors.New("match not found")
	ErrConflict = errors.New("match modified concurrently")
)

// Result tokens stored on finished matches.
const (
	ResultWhite = "white"
	ResultBlack = "black"
	ResultDraw  = "draw"
)

// Termination reasons.
const (
	TerminationCheckmate   = "checkmate"
	TerminationStalemate   = "stalemate"
	TerminationResignation = "resignation"
)

// Record is the persisted state of one match.
type Record struct {
	ID          int         `json:"id"`
	WhiteID     string      `json:"white_id,omitempty"`
	BlackID     string      `json:"black_id,omitempty"`
	Name        string      `json:"name"`
	Game        *chess.Game `json:"game"`
	Over        bool        `json:"over"`
	MovesSAN    []string    `json:"moves_san"`
	MovesUCI    []string    `json:"moves_uci"`
	Result      string      `json:"result,omitempty"`
	Termination string      `json:"termination,omitempty"`
	Version     int64       `json:"version"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Store is the persistence contract used by the session protocol.
type Store interface {
	CreateMatch(ctx context.Context, name string) (*Record, error)
	GetMatch(ctx context.Context, id int) (*Record, error)
	// UpdateMatch writes rec back. It fails with ErrNotFound for an unknown id and
	// ErrConflict if the stored version moved since rec was loaded. On success
	// rec.Version and rec.UpdatedAt are advanced.
	UpdateMatch(ctx context.Context, rec *Record) error
}

func newRecord(id int, name string, now time.Time) *Record {
	return &Record{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Game:      chess.NewGame(),
		MovesSAN:  []string{},
		MovesUCI:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Seat reports which color identity plays in this match.
func (r *Record) Seat(identity string) (chess.Color, bool) {
	identity = strings.TrimSpace(identity)
	switch {
	case identity == "":
		return chess.White, false
	case r.WhiteID == identity:
		return chess.White, true
	case r.BlackID == identity:
		return chess.Black, true
	}
	return chess.White, false
}

// ClearSeat empties every seat held by identity and reports whether one was held.
func (r *Record) ClearSeat(identity string) bool {
	cleared := false
	if identity != "" && r.WhiteID == identity {
		r.WhiteID = ""
		cleared = true
	}
	if identity != "" && r.BlackID == identity {
		r.BlackID = ""
		cleared = true
	}
	return cleared
}

// Finish marks the match over.
func (r *Record) Finish(result, termination string) {
	r.Over = true
	r.Result = result
	r.Termination = termination
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Game != nil {
		c.Game = r.Game.Clone()
	}
	c.MovesSAN = append([]string{}, r.MovesSAN...)
	c.MovesUCI = append([]string{}, r.MovesUCI...)
	return &c
}

// WinnerFor maps the winning color to a result token.
func WinnerFor(c chess.Color) string {
	if c == chess.White {
		return ResultWhite
	}
	return ResultBlack
}

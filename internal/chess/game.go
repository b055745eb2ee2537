package chess

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNoPiece     = errors.New("no piece at origin")
	ErrNotYourTurn = errors.New("not your turn")
	ErrIllegalMove = errors.New("illegal move")
)

// Status summarises the position for the side to move.
type Status uint8

const (
	StatusNormal Status = iota
	StatusCheck
	StatusCheckmate
	StatusStalemate
)

func (s Status) String() string {
	switch s {
	case StatusCheck:
		return "check"
	case StatusCheckmate:
		return "checkmate"
	case StatusStalemate:
		return "stalemate"
	}
	return "normal"
}

// Terminal reports whether no further moves can be played.
func (s Status) Terminal() bool { return s == StatusCheckmate || s == StatusStalemate }

// Game owns one board and the side to move.
type Game struct {
	board Board
	turn  Color
}

// NewGame returns a game at the standard start with White to move.
func NewGame() *Game {
	g := &Game{turn: White}
	g.board.Reset()
	return g
}

// NewGameFrom returns a game over a copy of b with turn to move.
func NewGameFrom(b *Board, turn Color) *Game {
	g := &Game{turn: turn}
	if b != nil {
		g.board = *b
	}
	return g
}

func (g *Game) Turn() Color { return g.turn }

func (g *Game) SetTurn(c Color) { g.turn = c }

// Board returns a copy of the live board.
func (g *Game) Board() *Board { return g.board.Copy() }

// SetBoard replaces the live board with a copy of b. A nil board clears it.
func (g *Game) SetBoard(b *Board) {
	if b == nil {
		g.board = Board{}
		return
	}
	g.board = *b
}

// Clone returns an independent game.
func (g *Game) Clone() *Game {
	c := *g
	return &c
}

func (g *Game) PieceAt(p Position) (Piece, bool) { return g.board.Get(p) }

// ValidMoves returns the legal moves of the piece on from.
// It returns nil if the square is empty and a non-nil slice otherwise.
func (g *Game) ValidMoves(from Position) []Move {
	p, ok := g.board.Get(from)
	if !ok {
		return nil
	}
	out := []Move{}
	for _, m := range p.CandidateMoves(&g.board, from) {
		trial := g.board
		applyMove(&trial, m)
		if !inCheck(&trial, p.Color) {
			out = append(out, m)
		}
	}
	return out
}

// AllValidMoves returns every legal move for color c.
func (g *Game) AllValidMoves(c Color) []Move {
	var out []Move
	g.board.Each(func(pos Position, p Piece) {
		if p.Color == c {
			out = append(out, g.ValidMoves(pos)...)
		}
	})
	return out
}

// MakeMove validates m against the current position and applies it.
// On failure the game is left unchanged.
func (g *Game) MakeMove(m Move) error {
	p, ok := g.board.Get(m.Start)
	if !ok {
		return fmt.Errorf("%s: %w", m.Start, ErrNoPiece)
	}
	if p.Color != g.turn {
		return fmt.Errorf("%s to move: %w", g.turn, ErrNotYourTurn)
	}
	legal := false
	for _, v := range g.ValidMoves(m.Start) {
		if v == m {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("%s: %w", m, ErrIllegalMove)
	}
	applyMove(&g.board, m)
	g.turn = g.turn.Other()
	return nil
}

// IsInCheck reports whether c's king is attacked. A missing king is never in check.
func (g *Game) IsInCheck(c Color) bool { return inCheck(&g.board, c) }

// IsInCheckmate reports check with no legal reply.
func (g *Game) IsInCheckmate(c Color) bool {
	return g.IsInCheck(c) && !g.hasAnyMove(c)
}

// IsInStalemate reports no check and no legal move.
func (g *Game) IsInStalemate(c Color) bool {
	return !g.IsInCheck(c) && !g.hasAnyMove(c)
}

// Status evaluates the side to move.
func (g *Game) Status() Status {
	check := g.IsInCheck(g.turn)
	moves := g.hasAnyMove(g.turn)
	switch {
	case check && !moves:
		return StatusCheckmate
	case !moves:
		return StatusStalemate
	case check:
		return StatusCheck
	}
	return StatusNormal
}

func (g *Game) hasAnyMove(c Color) bool {
	for i, p := range g.board.squares {
		if p.IsZero() || p.Color != c {
			continue
		}
		if len(g.ValidMoves(Position{Row: i/8 + 1, Col: i%8 + 1})) > 0 {
			return true
		}
	}
	return false
}

// applyMove moves the piece without any validation, promoting when the move
// names a type and lands on the far rank.
func applyMove(b *Board, m Move) {
	p := b.squares[m.Start.index()]
	if m.Promotion != NoPieceType && p.Type == Pawn && (m.End.Row == 8 || m.End.Row == 1) {
		p.Type = m.Promotion
	}
	b.squares[m.End.index()] = p
	b.squares[m.Start.index()] = Piece{}
}

func inCheck(b *Board, c Color) bool {
	king, ok := b.find(Piece{Color: c, Type: King})
	if !ok {
		return false
	}
	for i, p := range b.squares {
		if p.IsZero() || p.Color == c {
			continue
		}
		for _, m := range p.CandidateMoves(b, Position{Row: i/8 + 1, Col: i%8 + 1}) {
			if m.End == king {
				return true
			}
		}
	}
	return false
}

type gameJSON struct {
	Board *Board `json:"board"`
	Turn  Color  `json:"turn"`
}

func (g *Game) MarshalJSON() ([]byte, error) {
	return json.Marshal(gameJSON{Board: &g.board, Turn: g.turn})
}

func (g *Game) UnmarshalJSON(data []byte) error {
	in := gameJSON{Board: &Board{}}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	g.board = *in.Board
	g.turn = in.Turn
	return nil
}

package chess

import (
	"encoding/json"
	"fmt"
)

// Board is an 8x8 grid of optional pieces stored as a flat value array,
// so a plain assignment yields an independent copy.
type Board struct {
	squares [64]Piece
}

// NewBoard returns a board in the standard starting layout.
func NewBoard() *Board {
	b := &Board{}
	b.Reset()
	return b
}

// EmptyBoard returns a board with no pieces.
func EmptyBoard() *Board { return &Board{} }

var backRank = [8]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// Reset restores the standard starting layout.
func (b *Board) Reset() {
	b.squares = [64]Piece{}
	for col := 1; col <= 8; col++ {
		b.squares[Pos(1, col).index()] = Piece{Color: White, Type: backRank[col-1]}
		b.squares[Pos(2, col).index()] = Piece{Color: White, Type: Pawn}
		b.squares[Pos(7, col).index()] = Piece{Color: Black, Type: Pawn}
		b.squares[Pos(8, col).index()] = Piece{Color: Black, Type: backRank[col-1]}
	}
}

// Get returns the piece at pos. ok is false for empty or off-board squares.
func (b *Board) Get(pos Position) (Piece, bool) {
	if !pos.Valid() {
		return Piece{}, false
	}
	p := b.squares[pos.index()]
	return p, !p.IsZero()
}

// Set places p at pos; the zero Piece clears the square. Off-board positions are ignored.
func (b *Board) Set(pos Position, p Piece) {
	if !pos.Valid() {
		return
	}
	b.squares[pos.index()] = p
}

// Clear empties pos.
func (b *Board) Clear(pos Position) { b.Set(pos, Piece{}) }

// Copy returns a structurally independent board.
func (b *Board) Copy() *Board {
	c := *b
	return &c
}

// Equal reports whether both boards hold the same pieces on the same squares.
func (b *Board) Equal(o *Board) bool {
	if b == nil || o == nil {
		return b == o
	}
	return b.squares == o.squares
}

// Each calls fn for every occupied square in row-major order starting at a1.
func (b *Board) Each(fn func(Position, Piece)) {
	for i, p := range b.squares {
		if p.IsZero() {
			continue
		}
		fn(Position{Row: i/8 + 1, Col: i%8 + 1}, p)
	}
}

// find returns the first square holding want.
func (b *Board) find(want Piece) (Position, bool) {
	for i, p := range b.squares {
		if p == want {
			return Position{Row: i/8 + 1, Col: i%8 + 1}, true
		}
	}
	return Position{}, false
}

// MarshalJSON encodes the board as 8 rows of 8 cells, row 0 being rank 1.
// Empty squares encode as null.
func (b *Board) MarshalJSON() ([]byte, error) {
	rows := make([][]*Piece, 8)
	for r := 0; r < 8; r++ {
		rows[r] = make([]*Piece, 8)
		for c := 0; c < 8; c++ {
			p := b.squares[r*8+c]
			if !p.IsZero() {
				rows[r][c] = &p
			}
		}
	}
	return json.Marshal(rows)
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var rows [][]*Piece
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	if len(rows) != 8 {
		return fmt.Errorf("board: want 8 rows, got %d", len(rows))
	}
	var sq [64]Piece
	for r, row := range rows {
		if len(row) != 8 {
			return fmt.Errorf("board: row %d: want 8 cells, got %d", r+1, len(row))
		}
		for c, p := range row {
			if p != nil {
				sq[r*8+c] = *p
			}
		}
	}
	b.squares = sq
	return nil
}

package chess

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Color identifies chess side.
type Color uint8

const (
	White Color = iota
	Black
)

// Other returns the opposing side.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	if c == Black {
		return "BLACK"
	}
	return "WHITE"
}

func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Color) UnmarshalText(b []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(b))) {
	case "WHITE", "W":
		*c = White
	case "BLACK", "B":
		*c = Black
	default:
		return fmt.Errorf("unknown color %q", string(b))
	}
	return nil
}

// PieceType is the kind of a piece. NoPieceType doubles as "no promotion".
type PieceType uint8

const (
	NoPieceType PieceType = iota
	King
	Queen
	Rook
	Bishop
	Knight
	Pawn
)

var pieceTypeNames = [...]string{
	NoPieceType: "",
	King:        "KING",
	Queen:       "QUEEN",
	Rook:        "ROOK",
	Bishop:      "BISHOP",
	Knight:      "KNIGHT",
	Pawn:        "PAWN",
}

// promotionTypes lists what a pawn may become, in emission order.
var promotionTypes = [...]PieceType{Queen, Rook, Bishop, Knight}

func (t PieceType) String() string {
	if int(t) < len(pieceTypeNames) {
		return pieceTypeNames[t]
	}
	return fmt.Sprintf("PieceType(%d)", uint8(t))
}

// letter is the lowercase FEN/UCI letter of the type.
func (t PieceType) letter() byte {
	switch t {
	case King:
		return 'k'
	case Queen:
		return 'q'
	case Rook:
		return 'r'
	case Bishop:
		return 'b'
	case Knight:
		return 'n'
	case Pawn:
		return 'p'
	}
	return 0
}

func pieceTypeFromLetter(b byte) (PieceType, bool) {
	switch b | 0x20 {
	case 'k':
		return King, true
	case 'q':
		return Queen, true
	case 'r':
		return Rook, true
	case 'b':
		return Bishop, true
	case 'n':
		return Knight, true
	case 'p':
		return Pawn, true
	}
	return NoPieceType, false
}

func (t PieceType) MarshalText() ([]byte, error) {
	if t == NoPieceType {
		return nil, fmt.Errorf("cannot encode empty piece type")
	}
	return []byte(t.String()), nil
}

func (t *PieceType) UnmarshalText(b []byte) error {
	s := strings.ToUpper(strings.TrimSpace(string(b)))
	for i, name := range pieceTypeNames {
		if name != "" && name == s {
			*t = PieceType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown piece type %q", string(b))
}

// Piece is an immutable (color, type) pair. The zero value is "no piece".
type Piece struct {
	Color Color     `json:"color"`
	Type  PieceType `json:"type"`
}

// NewPiece builds a piece value.
func NewPiece(c Color, t PieceType) Piece { return Piece{Color: c, Type: t} }

// IsZero reports whether p represents an empty square.
func (p Piece) IsZero() bool { return p.Type == NoPieceType }

func (p Piece) String() string {
	if p.IsZero() {
		return "-"
	}
	return p.Color.String() + " " + p.Type.String()
}

// fenLetter returns the FEN letter: uppercase for white.
func (p Piece) fenLetter() byte {
	l := p.Type.letter()
	if p.Color == White {
		return l - 0x20
	}
	return l
}

// Position is a board square; Row and Col are both 1..8.
// Row 1 is White's back rank, Col 1 is the a-file.
type Position struct {
	Row int `json:"row"`
	Col int `json:"column"`
}

// Pos is shorthand for Position{Row: row, Col: col}.
func Pos(row, col int) Position { return Position{Row: row, Col: col} }

// Valid reports whether the position lies on the board.
func (p Position) Valid() bool {
	return p.Row >= 1 && p.Row <= 8 && p.Col >= 1 && p.Col <= 8
}

func (p Position) index() int { return (p.Row-1)*8 + (p.Col - 1) }

func (p Position) offset(dr, dc int) Position { return Position{Row: p.Row + dr, Col: p.Col + dc} }

// String renders the square in algebraic form ("e4").
func (p Position) String() string {
	if !p.Valid() {
		return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
	}
	return string([]byte{byte('a' + p.Col - 1), byte('0' + p.Row)})
}

// ParseSquare reads an algebraic square such as "e4".
func ParseSquare(s string) (Position, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return Position{}, fmt.Errorf("invalid square %q", s)
	}
	return Position{Row: int(s[1] - '0'), Col: int(s[0]-'a') + 1}, nil
}

// Move is an origin/destination pair plus an optional promotion type.
// Moves are comparable values.
type Move struct {
	Start     Position
	End       Position
	Promotion PieceType
}

type moveJSON struct {
	Start     Position   `json:"startPosition"`
	End       Position   `json:"endPosition"`
	Promotion *PieceType `json:"promotionPiece"`
}

func (m Move) MarshalJSON() ([]byte, error) {
	out := moveJSON{Start: m.Start, End: m.End}
	if m.Promotion != NoPieceType {
		p := m.Promotion
		out.Promotion = &p
	}
	return json.Marshal(out)
}

func (m *Move) UnmarshalJSON(b []byte) error {
	var in moveJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	m.Start, m.End, m.Promotion = in.Start, in.End, NoPieceType
	if in.Promotion != nil {
		m.Promotion = *in.Promotion
	}
	return nil
}

// Valid reports whether both squares are on the board and the promotion type is one a pawn may take.
func (m Move) Valid() bool {
	if !m.Start.Valid() || !m.End.Valid() {
		return false
	}
	switch m.Promotion {
	case NoPieceType, Queen, Rook, Bishop, Knight:
		return true
	}
	return false
}

// UCI renders the move in long algebraic form ("e7e8q").
func (m Move) UCI() string {
	s := m.Start.String() + m.End.String()
	if l := m.Promotion.letter(); l != 0 {
		s += string(l)
	}
	return s
}

func (m Move) String() string { return m.UCI() }

// ParseUCI reads a long algebraic move such as "e2e4" or "a7a8q".
func ParseUCI(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid move %q", s)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return Move{}, err
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return Move{}, err
	}
	m := Move{Start: from, End: to}
	if len(s) == 5 {
		t, ok := pieceTypeFromLetter(s[4])
		if !ok || t == King || t == Pawn {
			return Move{}, fmt.Errorf("invalid promotion in %q", s)
		}
		m.Promotion = t
	}
	return m, nil
}

package chess

import (
	"fmt"
	"strings"
)

// FEN renders the position. Castling rights and en-passant target are always "-"
// since neither rule is played; the move counters are fixed at "0 1".
func (g *Game) FEN() string {
	var sb strings.Builder
	for row := 8; row >= 1; row-- {
		empty := 0
		for col := 1; col <= 8; col++ {
			p, ok := g.board.Get(Pos(row, col))
			if !ok {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(p.fenLetter())
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if row > 1 {
			sb.WriteByte('/')
		}
	}
	if g.turn == White {
		sb.WriteString(" w")
	} else {
		sb.WriteString(" b")
	}
	sb.WriteString(" - - 0 1")
	return sb.String()
}

// ParseFEN builds a game from the placement and side-to-move fields of a FEN string.
// Remaining fields are ignored.
func ParseFEN(fen string) (*Game, error) {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return nil, fmt.Errorf("fen: empty")
	}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("fen: want 8 ranks, got %d", len(ranks))
	}
	g := &Game{turn: White}
	for i, rank := range ranks {
		row := 8 - i
		col := 1
		for j := 0; j < len(rank); j++ {
			ch := rank[j]
			if ch >= '1' && ch <= '8' {
				col += int(ch - '0')
				continue
			}
			t, ok := pieceTypeFromLetter(ch)
			if !ok {
				return nil, fmt.Errorf("fen: bad piece %q", ch)
			}
			if col > 8 {
				return nil, fmt.Errorf("fen: rank %d overflows", row)
			}
			c := Black
			if ch >= 'A' && ch <= 'Z' {
				c = White
			}
			g.board.Set(Pos(row, col), Piece{Color: c, Type: t})
			col++
		}
		if col != 9 {
			return nil, fmt.Errorf("fen: rank %d has %d files", row, col-1)
		}
	}
	if len(fields) > 1 {
		switch fields[1] {
		case "w":
		case "b":
			g.turn = Black
		default:
			return nil, fmt.Errorf("fen: bad side to move %q", fields[1])
		}
	}
	return g, nil
}

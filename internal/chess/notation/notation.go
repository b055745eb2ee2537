// Package notation describes moves in standard algebraic notation by
// replaying the position through corentings/chess.
package notation

import (
	"fmt"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-chess-server/internal/chess"
)

// SAN returns the algebraic form of m played from g's current position,
// including check and mate suffixes. g is not modified.
func SAN(g *chess.Game, m chess.Move) (string, error) {
	pos, err := position(g)
	if err != nil {
		return "", err
	}
	mv, err := nchess.UCINotation{}.Decode(pos, m.UCI())
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", m.UCI(), err)
	}
	return nchess.AlgebraicNotation{}.Encode(pos, mv), nil
}

// SANOrUCI is SAN with the UCI text as fallback.
func SANOrUCI(g *chess.Game, m chess.Move) string {
	if s, err := SAN(g, m); err == nil {
		return s
	}
	return m.UCI()
}

// LegalUCI lists the legal moves of g's side to move as computed by
// corentings/chess, in UCI form.
func LegalUCI(g *chess.Game) ([]string, error) {
	opt, err := nchess.FEN(g.FEN())
	if err != nil {
		return nil, fmt.Errorf("fen: %w", err)
	}
	ng := nchess.NewGame(opt)
	moves := ng.ValidMoves()
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, mv.String())
	}
	return out, nil
}

func position(g *chess.Game) (*nchess.Position, error) {
	opt, err := nchess.FEN(g.FEN())
	if err != nil {
		return nil, fmt.Errorf("fen: %w", err)
	}
	return nchess.NewGame(opt).Position(), nil
}

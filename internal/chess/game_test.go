package chess

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func mustUCI(t *testing.T, s string) Move {
	t.Helper()
	m, err := ParseUCI(s)
	require.NoError(t, err)
	return m
}

func play(t *testing.T, g *Game, moves ...string) {
	t.Helper()
	for _, s := range moves {
		require.NoError(t, g.MakeMove(mustUCI(t, s)), "move %s", s)
	}
}

func TestBoardCopyIsIndependent(t *testing.T) {
	b := NewBoard()
	c := b.Copy()
	c.Clear(Pos(2, 5))
	c.Set(Pos(4, 4), NewPiece(Black, Queen))

	p, ok := b.Get(Pos(2, 5))
	require.True(t, ok)
	assert.Equal(t, NewPiece(White, Pawn), p)
	_, ok = b.Get(Pos(4, 4))
	assert.False(t, ok)
}

func TestGameBoardExchangesCopies(t *testing.T) {
	g := NewGame()
	b := g.Board()
	b.Clear(Pos(1, 5))
	_, ok := g.PieceAt(Pos(1, 5))
	assert.True(t, ok, "mutating Board() result must not reach the game")

	in := EmptyBoard()
	in.Set(Pos(1, 1), NewPiece(White, King))
	g.SetBoard(in)
	in.Set(Pos(8, 8), NewPiece(Black, King))
	_, ok = g.PieceAt(Pos(8, 8))
	assert.False(t, ok, "mutating the SetBoard argument must not reach the game")
}

func TestStartPositionMoveCount(t *testing.T) {
	g := NewGame()
	assert.Len(t, g.AllValidMoves(White), 20)
	assert.Len(t, g.AllValidMoves(Black), 20)
	assert.Equal(t, StatusNormal, g.Status())
}

func TestValidMovesEmptySquare(t *testing.T) {
	g := NewGame()
	assert.Nil(t, g.ValidMoves(Pos(4, 4)))
	moves := g.ValidMoves(Pos(1, 1))
	assert.NotNil(t, moves)
	assert.Empty(t, moves)
}

func TestPawnOpening(t *testing.T) {
	g := NewGame()
	err := g.MakeMove(Move{Start: Pos(2, 5), End: Pos(4, 5)})
	require.NoError(t, err)
	assert.Equal(t, Black, g.Turn())
	p, ok := g.PieceAt(Pos(4, 5))
	require.True(t, ok)
	assert.Equal(t, NewPiece(White, Pawn), p)
	_, ok = g.PieceAt(Pos(2, 5))
	assert.False(t, ok)
}

func TestPawnTwoStepBlocked(t *testing.T) {
	g, err := ParseFEN("4k3/8/8/8/8/4n3/4P3/4K3 w - - 0 1")
	require.NoError(t, err)
	assert.Empty(t, g.ValidMoves(Pos(2, 5)))

	g, err = ParseFEN("4k3/8/8/8/4n3/8/4P3/4K3 w - - 0 1")
	require.NoError(t, err)
	assert.Equal(t, []Move{{Start: Pos(2, 5), End: Pos(3, 5)}}, g.ValidMoves(Pos(2, 5)))
}

func TestPawnDiagonalNeedsEnemy(t *testing.T) {
	g, err := ParseFEN("4k3/8/8/8/8/3p1P2/4P3/4K3 w - - 0 1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []Move{
		{Start: Pos(2, 5), End: Pos(3, 5)},
		{Start: Pos(2, 5), End: Pos(4, 5)},
		{Start: Pos(2, 5), End: Pos(3, 4)},
	}, g.ValidMoves(Pos(2, 5)))
}

func TestFoolsMateWhite(t *testing.T) {
	g := NewGame()
	play(t, g, "f2f3", "e7e5", "g2g4", "d8h4")
	assert.True(t, g.IsInCheck(White))
	assert.True(t, g.IsInCheckmate(White))
	assert.False(t, g.IsInStalemate(White))
	assert.Empty(t, g.AllValidMoves(White))
	assert.Equal(t, StatusCheckmate, g.Status())
}

func TestFoolsMateBlack(t *testing.T) {
	g := NewGame()
	play(t, g, "e2e4", "g7g5", "d2d4", "f7f6", "d1h5")
	assert.True(t, g.IsInCheckmate(Black))
	assert.False(t, g.IsInCheckmate(White))
}

func TestStalemate(t *testing.T) {
	g, err := ParseFEN("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	require.NoError(t, err)
	assert.False(t, g.IsInCheck(Black))
	assert.True(t, g.IsInStalemate(Black))
	assert.False(t, g.IsInCheckmate(Black))
	assert.Equal(t, StatusStalemate, g.Status())
}

func TestPromotion(t *testing.T) {
	g, err := ParseFEN("8/P7/8/8/8/8/8/k6K w - - 0 1")
	require.NoError(t, err)
	moves := g.ValidMoves(Pos(7, 1))
	require.Len(t, moves, 4)
	for i, want := range []PieceType{Queen, Rook, Bishop, Knight} {
		assert.Equal(t, want, moves[i].Promotion)
	}

	err = g.MakeMove(Move{Start: Pos(7, 1), End: Pos(8, 1)})
	assert.ErrorIs(t, err, ErrIllegalMove, "plain move onto the last rank is not legal")

	require.NoError(t, g.MakeMove(Move{Start: Pos(7, 1), End: Pos(8, 1), Promotion: Knight}))
	p, _ := g.PieceAt(Pos(8, 1))
	assert.Equal(t, NewPiece(White, Knight), p)
}

func TestMakeMoveErrors(t *testing.T) {
	g := NewGame()
	before := g.FEN()

	err := g.MakeMove(Move{Start: Pos(4, 4), End: Pos(5, 4)})
	assert.ErrorIs(t, err, ErrNoPiece)
	err = g.MakeMove(Move{Start: Pos(7, 5), End: Pos(5, 5)})
	assert.ErrorIs(t, err, ErrNotYourTurn)
	err = g.MakeMove(Move{Start: Pos(2, 5), End: Pos(5, 5)})
	assert.ErrorIs(t, err, ErrIllegalMove)

	assert.Equal(t, before, g.FEN())
	assert.Equal(t, White, g.Turn())
}

func TestPinnedPieceCannotMove(t *testing.T) {
	g, err := ParseFEN("4r1k1/8/8/8/8/8/4B3/4K3 w - - 0 1")
	require.NoError(t, err)
	assert.Empty(t, g.ValidMoves(Pos(2, 5)))
	assert.False(t, g.IsInCheck(White))
}

func TestMissingKingIsNeverInCheck(t *testing.T) {
	g, err := ParseFEN("8/8/8/8/8/8/8/q7 w - - 0 1")
	require.NoError(t, err)
	assert.False(t, g.IsInCheck(White))
}

func TestFENRoundTrip(t *testing.T) {
	g := NewGame()
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w - - 0 1", g.FEN())
	play(t, g, "e2e4")
	back, err := ParseFEN(g.FEN())
	require.NoError(t, err)
	assert.True(t, g.Board().Equal(back.Board()))
	assert.Equal(t, g.Turn(), back.Turn())
}

func TestErrNotYourTurnWrapped(t *testing.T) {
	g := NewGame()
	err := g.MakeMove(mustUCI(t, "e7e5"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotYourTurn))
}

// randomGame plays up to n random legal moves from the start.
func randomGame(t *rapid.T, n int) *Game {
	g := NewGame()
	for i := 0; i < n; i++ {
		moves := g.AllValidMoves(g.Turn())
		if len(moves) == 0 {
			break
		}
		m := rapid.SampledFrom(moves).Draw(t, "move")
		if err := g.MakeMove(m); err != nil {
			t.Fatalf("legal move %s rejected: %v", m, err)
		}
	}
	return g
}

func TestValidMovesKeepKingSafe(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := randomGame(t, rapid.IntRange(0, 40).Draw(t, "plies"))
		mover := g.Turn()
		for _, m := range g.AllValidMoves(mover) {
			trial := g.Clone()
			if err := trial.MakeMove(m); err != nil {
				t.Fatalf("valid move %s rejected: %v", m, err)
			}
			if trial.IsInCheck(mover) {
				t.Fatalf("move %s leaves %s in check", m, mover)
			}
			if trial.Turn() != mover.Other() {
				t.Fatalf("turn did not flip after %s", m)
			}
		}
	})
}

func TestTerminalStatesAreConsistent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := randomGame(t, rapid.IntRange(0, 120).Draw(t, "plies"))
		c := g.Turn()
		none := len(g.AllValidMoves(c)) == 0
		if g.IsInCheckmate(c) && !(g.IsInCheck(c) && none) {
			t.Fatalf("checkmate without check and zero moves: %s", g.FEN())
		}
		if g.IsInStalemate(c) && (g.IsInCheck(c) || !none) {
			t.Fatalf("stalemate with check or moves: %s", g.FEN())
		}
	})
}

func TestIllegalMoveLeavesStateUnchanged(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := randomGame(t, rapid.IntRange(0, 30).Draw(t, "plies"))
		m := Move{
			Start: Pos(rapid.IntRange(1, 8).Draw(t, "sr"), rapid.IntRange(1, 8).Draw(t, "sc")),
			End:   Pos(rapid.IntRange(1, 8).Draw(t, "er"), rapid.IntRange(1, 8).Draw(t, "ec")),
		}
		legal := false
		for _, v := range g.ValidMoves(m.Start) {
			if v == m {
				legal = true
			}
		}
		if legal {
			return
		}
		before, turn := g.FEN(), g.Turn()
		if err := g.MakeMove(m); err == nil {
			t.Fatalf("move %s accepted but not in ValidMoves", m)
		}
		if g.FEN() != before || g.Turn() != turn {
			t.Fatalf("rejected move %s changed the game", m)
		}
	})
}

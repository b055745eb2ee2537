package chess

// geometryFunc produces pseudo-legal moves for the piece standing on from.
// It honours board bounds and friendly blocking but not king safety.
type geometryFunc func(b *Board, from Position, p Piece) []Move

type direction struct{ dr, dc int }

var (
	orthogonal = []direction{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	diagonal   = []direction{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	royal      = append(append([]direction{}, orthogonal...), diagonal...)
	knightHops = []direction{{2, 1}, {2, -1}, {-2, 1}, {-2, -1}, {1, 2}, {1, -2}, {-1, 2}, {-1, -2}}
)

var geometry = [...]geometryFunc{
	King:   stepMoves(royal),
	Queen:  slideMoves(royal),
	Rook:   slideMoves(orthogonal),
	Bishop: slideMoves(diagonal),
	Knight: stepMoves(knightHops),
	Pawn:   pawnMoves,
}

// CandidateMoves returns the pseudo-legal moves for the piece at from.
// An empty square yields nil.
func CandidateMoves(b *Board, from Position) []Move {
	p, ok := b.Get(from)
	if !ok {
		return nil
	}
	return p.CandidateMoves(b, from)
}

// CandidateMoves returns the pseudo-legal moves for p standing on from.
func (p Piece) CandidateMoves(b *Board, from Position) []Move {
	if int(p.Type) >= len(geometry) || geometry[p.Type] == nil {
		return nil
	}
	return geometry[p.Type](b, from, p)
}

func slideMoves(dirs []direction) geometryFunc {
	return func(b *Board, from Position, p Piece) []Move {
		var out []Move
		for _, d := range dirs {
			for to := from.offset(d.dr, d.dc); to.Valid(); to = to.offset(d.dr, d.dc) {
				occ, taken := b.Get(to)
				if taken && occ.Color == p.Color {
					break
				}
				out = append(out, Move{Start: from, End: to})
				if taken {
					break
				}
			}
		}
		return out
	}
}

func stepMoves(offsets []direction) geometryFunc {
	return func(b *Board, from Position, p Piece) []Move {
		var out []Move
		for _, d := range offsets {
			to := from.offset(d.dr, d.dc)
			if !to.Valid() {
				continue
			}
			if occ, taken := b.Get(to); taken && occ.Color == p.Color {
				continue
			}
			out = append(out, Move{Start: from, End: to})
		}
		return out
	}
}

func pawnMoves(b *Board, from Position, p Piece) []Move {
	forward, startRow, lastRow := 1, 2, 8
	if p.Color == Black {
		forward, startRow, lastRow = -1, 7, 1
	}

	var out []Move
	emit := func(to Position) {
		if to.Row != lastRow {
			out = append(out, Move{Start: from, End: to})
			return
		}
		for _, t := range promotionTypes {
			out = append(out, Move{Start: from, End: to, Promotion: t})
		}
	}

	one := from.offset(forward, 0)
	if _, taken := b.Get(one); one.Valid() && !taken {
		emit(one)
		two := from.offset(2*forward, 0)
		if _, taken := b.Get(two); from.Row == startRow && !taken {
			emit(two)
		}
	}
	for _, dc := range [2]int{-1, 1} {
		to := from.offset(forward, dc)
		if occ, taken := b.Get(to); taken && occ.Color != p.Color {
			emit(to)
		}
	}
	return out
}

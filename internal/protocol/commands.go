package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/chess/notation"
	"github.com/park285/cheese-chess-server/internal/match"
	"github.com/park285/cheese-chess-server/internal/session"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

func roleFor(rec *match.Record, identity string) session.Role {
	c, ok := rec.Seat(identity)
	switch {
	case !ok:
		return session.RoleObserver
	case c == chess.White:
		return session.RoleWhite
	default:
		return session.RoleBlack
	}
}

// playerLabel names whoever plays c, falling back to the color itself.
func playerLabel(rec *match.Record, c chess.Color) string {
	id := rec.WhiteID
	if c == chess.Black {
		id = rec.BlackID
	}
	if strings.TrimSpace(id) == "" {
		return strings.ToLower(c.String())
	}
	return id
}

func (h *Handler) connect(ctx context.Context, conn session.Conn, cmd *chessdto.Command) error {
	id, err := h.authenticate(ctx, cmd.AuthToken)
	if err != nil {
		return err
	}
	rec, err := h.load(ctx, cmd.GameID)
	if err != nil {
		return err
	}
	role := roleFor(rec, id)

	prev, hadPrev := h.registry.Lookup(conn.ID())
	if err := h.registry.Add(conn, id, rec.ID, role); err != nil {
		return err
	}
	if hadPrev && prev.MatchID != rec.ID {
		h.registry.Broadcast(ctx, prev.MatchID, chessdto.Notification(
			h.text("notify.left", map[string]string{"User": prev.Identity})))
	}
	h.log.Info("ws_connect",
		zap.String("conn_id", conn.ID()),
		zap.String("user", id),
		zap.Int("match_id", rec.ID),
		zap.String("role", string(role)),
	)

	if err := h.registry.Unicast(ctx, conn.ID(), chessdto.LoadGame(snapshotOf(rec))); err != nil {
		h.log.Warn("snapshot_send_failed", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
	h.registry.BroadcastExcept(ctx, rec.ID, conn.ID(), chessdto.Notification(
		h.text("notify.connected", map[string]string{"User": id, "Role": string(role)})))
	return nil
}

func (h *Handler) makeMove(ctx context.Context, conn session.Conn, cmd *chessdto.Command) error {
	entry, err := h.associated(ctx, conn, cmd)
	if err != nil {
		return err
	}
	if entry.Role == session.RoleObserver {
		return newError(KindForbidden, h.text("error.observer_move", nil), nil)
	}
	mv := *cmd.Move

	unlock := h.locks.Lock(entry.MatchID)
	defer unlock()

	rec, err := h.load(ctx, entry.MatchID)
	if err != nil {
		return err
	}
	if rec.Over {
		return newError(KindForbidden, h.text("error.game_over", nil), nil)
	}
	color, seated := rec.Seat(entry.Identity)
	if !seated {
		return newError(KindForbidden, h.text("error.observer_move", nil),
			fmt.Errorf("%s no longer holds a seat in match %d", entry.Identity, rec.ID))
	}
	g := rec.Game
	if g.Turn() != color {
		return newError(KindIllegal, h.text("error.not_your_turn", nil), chess.ErrNotYourTurn)
	}
	moveData := map[string]string{"From": mv.Start.String(), "To": mv.End.String(), "Move": mv.UCI()}
	piece, ok := g.PieceAt(mv.Start)
	if !ok {
		return newError(KindIllegal, h.text("error.no_piece", moveData), chess.ErrNoPiece)
	}
	if piece.Color != color {
		return newError(KindIllegal, h.text("error.not_your_piece", moveData), nil)
	}

	san := notation.SANOrUCI(g, mv)
	if err := g.MakeMove(mv); err != nil {
		return newError(KindIllegal, h.text("error.illegal_move", moveData), err)
	}
	rec.MovesUCI = append(rec.MovesUCI, mv.UCI())
	rec.MovesSAN = append(rec.MovesSAN, san)

	opponent := color.Other()
	status := g.Status()
	switch status {
	case chess.StatusCheckmate:
		rec.Finish(match.WinnerFor(color), match.TerminationCheckmate)
	case chess.StatusStalemate:
		rec.Finish(match.ResultDraw, match.TerminationStalemate)
	}
	if err := h.save(ctx, rec); err != nil {
		return err
	}
	h.log.Info("match_move",
		zap.Int("match_id", rec.ID),
		zap.String("user", entry.Identity),
		zap.String("uci", mv.UCI()),
		zap.String("san", san),
		zap.String("status", status.String()),
	)

	// Fan-out stays under the match lock so observers see moves in order.
	fctx := context.WithoutCancel(ctx)
	snap := snapshotOf(rec)
	if err := h.registry.Unicast(fctx, conn.ID(), chessdto.LoadGame(snap)); err != nil {
		h.log.Warn("snapshot_send_failed", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
	h.registry.BroadcastExcept(fctx, rec.ID, conn.ID(), chessdto.LoadGame(snap))
	h.registry.BroadcastExcept(fctx, rec.ID, conn.ID(), chessdto.Notification(
		h.text("notify.moved", map[string]string{"User": entry.Identity, "SAN": san, "From": mv.Start.String(), "To": mv.End.String()})))

	data := map[string]string{
		"User":   playerLabel(rec, opponent),
		"Color":  strings.ToLower(opponent.String()),
		"Winner": playerLabel(rec, color),
	}
	switch status {
	case chess.StatusCheck:
		h.registry.Broadcast(fctx, rec.ID, chessdto.Notification(h.text("notify.check", data)))
	case chess.StatusCheckmate:
		h.registry.Broadcast(fctx, rec.ID, chessdto.Notification(h.text("notify.checkmate", data)))
	case chess.StatusStalemate:
		h.registry.Broadcast(fctx, rec.ID, chessdto.Notification(h.text("notify.stalemate", data)))
	}
	if rec.Over {
		h.log.Info("match_over",
			zap.Int("match_id", rec.ID),
			zap.String("result", rec.Result),
			zap.String("termination", rec.Termination),
		)
		h.archiveResult(fctx, rec)
	}
	return nil
}

func (h *Handler) leave(ctx context.Context, conn session.Conn, cmd *chessdto.Command) error {
	entry, err := h.associated(ctx, conn, cmd)
	if err != nil {
		return err
	}
	if entry.Role.Seated() {
		unlock := h.locks.Lock(entry.MatchID)
		err := h.vacate(ctx, entry)
		unlock()
		if err != nil {
			return err
		}
	}
	h.registry.Remove(conn.ID())
	h.log.Info("match_leave",
		zap.String("conn_id", conn.ID()),
		zap.String("user", entry.Identity),
		zap.Int("match_id", entry.MatchID),
		zap.String("role", string(entry.Role)),
	)
	h.registry.Broadcast(ctx, entry.MatchID, chessdto.Notification(
		h.text("notify.left", map[string]string{"User": entry.Identity})))
	return nil
}

// vacate clears the seat of entry in the stored record. A record that no
// longer exists has nothing to clear.
func (h *Handler) vacate(ctx context.Context, entry session.Entry) error {
	rec, err := h.load(ctx, entry.MatchID)
	var perr *Error
	if errors.As(err, &perr) && perr.Kind == KindNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if !rec.ClearSeat(entry.Identity) {
		return nil
	}
	return h.save(ctx, rec)
}

func (h *Handler) resign(ctx context.Context, conn session.Conn, cmd *chessdto.Command) error {
	entry, err := h.associated(ctx, conn, cmd)
	if err != nil {
		return err
	}
	if !entry.Role.Seated() {
		return newError(KindForbidden, h.text("error.observer_resign", nil), nil)
	}

	unlock := h.locks.Lock(entry.MatchID)
	defer unlock()

	rec, err := h.load(ctx, entry.MatchID)
	if err != nil {
		return err
	}
	if rec.Over {
		return newError(KindForbidden, h.text("error.game_over", nil), nil)
	}
	color, seated := rec.Seat(entry.Identity)
	if !seated {
		return newError(KindForbidden, h.text("error.observer_resign", nil),
			fmt.Errorf("%s no longer holds a seat in match %d", entry.Identity, rec.ID))
	}
	rec.Finish(match.WinnerFor(color.Other()), match.TerminationResignation)
	if err := h.save(ctx, rec); err != nil {
		return err
	}
	h.log.Info("match_resign",
		zap.Int("match_id", rec.ID),
		zap.String("user", entry.Identity),
		zap.String("result", rec.Result),
	)

	fctx := context.WithoutCancel(ctx)
	data := map[string]string{"User": entry.Identity, "Winner": playerLabel(rec, color.Other())}
	if err := h.registry.Unicast(fctx, conn.ID(), chessdto.Notification(h.text("notify.resigned_self", data))); err != nil {
		h.log.Warn("notify_send_failed", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
	h.registry.BroadcastExcept(fctx, rec.ID, conn.ID(), chessdto.Notification(h.text("notify.resigned", data)))
	h.archiveResult(fctx, rec)
	return nil
}

func (h *Handler) highlight(ctx context.Context, conn session.Conn, cmd *chessdto.Command) error {
	entry, err := h.associated(ctx, conn, cmd)
	if err != nil {
		return err
	}
	rec, err := h.load(ctx, entry.MatchID)
	if err != nil {
		return err
	}
	moves := rec.Game.ValidMoves(*cmd.Position)
	return h.registry.Unicast(ctx, conn.ID(), chessdto.LoadGameHighlight(snapshotOf(rec), moves))
}

func snapshotOf(rec *match.Record) *chessdto.Snapshot {
	g := rec.Game
	moves := rec.MovesSAN
	if moves == nil {
		moves = []string{}
	}
	return &chessdto.Snapshot{
		GameID:      rec.ID,
		Name:        rec.Name,
		WhiteUser:   rec.WhiteID,
		BlackUser:   rec.BlackID,
		Board:       g.Board(),
		Turn:        g.Turn(),
		FEN:         g.FEN(),
		Status:      g.Status().String(),
		Over:        rec.Over,
		Result:      rec.Result,
		Termination: rec.Termination,
		MovesSAN:    moves,
	}
}

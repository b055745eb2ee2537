// Package protocol dispatches client commands for live chess matches.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/cheese-chess-server/internal/identity"
	"github.com/park285/cheese-chess-server/internal/match"
	"github.com/park285/cheese-chess-server/internal/msgcat"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/internal/session"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

// Handler turns raw client frames into store mutations and fan-out.
type Handler struct {
	store    match.Store
	resolver identity.Resolver
	registry *session.Registry
	locks    *match.Locker
	archive  match.Archiver
	cat      *msgcat.Catalog
	log      *zap.Logger
}

type Option func(*Handler)

// WithArchive hands finished matches to a.
func WithArchive(a match.Archiver) Option {
	return func(h *Handler) { h.archive = a }
}

// WithCatalog overrides the embedded message catalog.
func WithCatalog(c *msgcat.Catalog) Option {
	return func(h *Handler) { h.cat = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithLocker shares a per-match locker between handlers.
func WithLocker(l *match.Locker) Option {
	return func(h *Handler) { h.locks = l }
}

func NewHandler(store match.Store, resolver identity.Resolver, registry *session.Registry, opts ...Option) *Handler {
	h := &Handler{
		store:    store,
		resolver: resolver,
		registry: registry,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.locks == nil {
		h.locks = match.NewLocker()
	}
	if h.cat == nil {
		h.cat = msgcat.MustDefault()
	}
	if h.log == nil {
		h.log = obslog.L()
	}
	return h
}

// Registry exposes the registry the handler broadcasts through.
func (h *Handler) Registry() *session.Registry { return h.registry }

// Handle processes one frame from conn. Every failure is answered to conn
// alone; nothing escapes, including panics.
func (h *Handler) Handle(ctx context.Context, conn session.Conn, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("protocol_panic",
				zap.String("conn_id", conn.ID()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			h.reply(ctx, conn, newError(KindInternal, h.text("error.internal", nil), fmt.Errorf("panic: %v", r)))
		}
	}()

	cmd, err := h.decode(raw)
	if err != nil {
		h.reply(ctx, conn, err)
		return
	}
	switch cmd.CommandType {
	case chessdto.CommandConnect:
		err = h.connect(ctx, conn, cmd)
	case chessdto.CommandMakeMove:
		err = h.makeMove(ctx, conn, cmd)
	case chessdto.CommandLeave:
		err = h.leave(ctx, conn, cmd)
	case chessdto.CommandResign:
		err = h.resign(ctx, conn, cmd)
	case chessdto.CommandHighlight:
		err = h.highlight(ctx, conn, cmd)
	}
	if err != nil {
		h.reply(ctx, conn, err)
	}
}

// Disconnect drops connID from the registry. Safe to call repeatedly.
func (h *Handler) Disconnect(connID string) {
	if e, ok := h.registry.Remove(connID); ok {
		h.log.Info("ws_disconnect",
			zap.String("conn_id", connID),
			zap.String("user", e.Identity),
			zap.Int("match_id", e.MatchID),
			zap.String("role", string(e.Role)),
		)
	}
}

func (h *Handler) decode(raw []byte) (*chessdto.Command, error) {
	var cmd chessdto.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, newError(KindBadRequest, h.text("error.bad_request", nil), err)
	}
	cmd.CommandType = chessdto.CommandType(strings.ToUpper(strings.TrimSpace(string(cmd.CommandType))))
	if !cmd.CommandType.Known() {
		return nil, newError(KindBadRequest, h.text("error.bad_request", nil), fmt.Errorf("command type %q", cmd.CommandType))
	}
	switch cmd.CommandType {
	case chessdto.CommandMakeMove:
		if cmd.Move == nil || !cmd.Move.Valid() {
			return nil, newError(KindBadRequest, h.text("error.bad_request", nil), errors.New("missing or out-of-range move"))
		}
	case chessdto.CommandHighlight:
		if cmd.Position == nil || !cmd.Position.Valid() {
			return nil, newError(KindBadRequest, h.text("error.bad_request", nil), errors.New("missing or out-of-range position"))
		}
	}
	return &cmd, nil
}

// reply sends err to conn as an ERROR frame.
func (h *Handler) reply(ctx context.Context, conn session.Conn, err error) {
	var perr *Error
	if !errors.As(err, &perr) {
		perr = newError(KindInternal, h.text("error.internal", nil), err)
	}
	lvl := h.log.Debug
	if perr.Kind == KindInternal {
		lvl = h.log.Error
	}
	lvl("command_rejected",
		zap.String("conn_id", conn.ID()),
		zap.String("kind", perr.Kind.String()),
		zap.Error(perr),
	)
	if serr := conn.Send(ctx, chessdto.Error(perr.Message)); serr != nil {
		h.log.Warn("error_reply_failed", zap.String("conn_id", conn.ID()), zap.Error(serr))
	}
}

// text renders a catalog entry, falling back to the generic internal text.
func (h *Handler) text(key string, data map[string]string) string {
	return h.cat.Text(key, data, chessdto.ErrorPrefix+"internal server error")
}

// authenticate resolves the credential of cmd.
func (h *Handler) authenticate(ctx context.Context, credential string) (string, error) {
	id, err := h.resolver.Resolve(ctx, credential)
	if errors.Is(err, identity.ErrUnknownCredential) {
		return "", newError(KindUnauthorized, h.text("error.bad_auth", nil), err)
	}
	if err != nil {
		return "", fmt.Errorf("resolve credential: %w", err)
	}
	return id, nil
}

// associated returns the registry entry of conn and checks that the
// credential still belongs to the same identity.
func (h *Handler) associated(ctx context.Context, conn session.Conn, cmd *chessdto.Command) (session.Entry, error) {
	entry, ok := h.registry.Lookup(conn.ID())
	if !ok {
		return session.Entry{}, newError(KindForbidden, h.text("error.not_connected", nil), nil)
	}
	id, err := h.authenticate(ctx, cmd.AuthToken)
	if err != nil {
		return session.Entry{}, err
	}
	if id != entry.Identity {
		return session.Entry{}, newError(KindUnauthorized, h.text("error.bad_auth", nil),
			fmt.Errorf("credential resolves to %q, connection belongs to %q", id, entry.Identity))
	}
	if cmd.GameID != 0 && cmd.GameID != entry.MatchID {
		return session.Entry{}, newError(KindBadRequest, h.text("error.bad_game_id", nil),
			fmt.Errorf("command for match %d on connection bound to %d", cmd.GameID, entry.MatchID))
	}
	return entry, nil
}

// load reads a match, translating a missing record.
func (h *Handler) load(ctx context.Context, id int) (*match.Record, error) {
	rec, err := h.store.GetMatch(ctx, id)
	if errors.Is(err, match.ErrNotFound) {
		return nil, newError(KindNotFound, h.text("error.bad_game_id", nil), err)
	}
	if err != nil {
		return nil, fmt.Errorf("load match %d: %w", id, err)
	}
	if rec.Game == nil {
		return nil, fmt.Errorf("match %d has no game state", id)
	}
	return rec, nil
}

// save persists rec, translating a lost write race.
func (h *Handler) save(ctx context.Context, rec *match.Record) error {
	err := h.store.UpdateMatch(ctx, rec)
	if errors.Is(err, match.ErrConflict) {
		return newError(KindInternal, h.text("error.conflict", nil), err)
	}
	if err != nil {
		return fmt.Errorf("save match %d: %w", rec.ID, err)
	}
	return nil
}

func (h *Handler) archiveResult(ctx context.Context, rec *match.Record) {
	if h.archive == nil || !rec.Over {
		return
	}
	if err := h.archive.SaveResult(ctx, rec); err != nil {
		h.log.Warn("match_archive_failed", zap.Int("match_id", rec.ID), zap.Error(err))
	}
}

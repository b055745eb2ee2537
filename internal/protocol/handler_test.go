package protocol

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/identity"
	"github.com/park285/cheese-chess-server/internal/match"
	"github.com/park285/cheese-chess-server/internal/session"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

type recConn struct {
	id   string
	mu   sync.Mutex
	msgs []*chessdto.ServerMessage
}

func (c *recConn) ID() string { return c.id }

func (c *recConn) Send(_ context.Context, m *chessdto.ServerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *recConn) all() []*chessdto.ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*chessdto.ServerMessage(nil), c.msgs...)
}

func (c *recConn) reset() {
	c.mu.Lock()
	c.msgs = nil
	c.mu.Unlock()
}

func (c *recConn) ofType(t chessdto.ServerMessageType) []*chessdto.ServerMessage {
	var out []*chessdto.ServerMessage
	for _, m := range c.all() {
		if m.ServerMessageType == t {
			out = append(out, m)
		}
	}
	return out
}

func (c *recConn) texts() []string {
	var out []string
	for _, m := range c.all() {
		switch m.ServerMessageType {
		case chessdto.MessageNotification:
			out = append(out, m.Message)
		case chessdto.MessageError:
			out = append(out, m.ErrorMessage)
		}
	}
	return out
}

type fakeArchive struct {
	mu   sync.Mutex
	recs []*match.Record
}

func (f *fakeArchive) SaveResult(_ context.Context, rec *match.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec.Clone())
	return nil
}

type harness struct {
	t       *testing.T
	h       *Handler
	store   *match.MemoryStore
	reg     *session.Registry
	archive *fakeArchive
	matchID int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := match.NewMemoryStore()
	res := identity.NewMemoryResolver()
	for _, u := range []string{"alice", "bob", "carol"} {
		res.Set("tok-"+u, u)
	}
	reg := session.NewRegistry()
	arch := &fakeArchive{}
	h := NewHandler(store, res, reg, WithArchive(arch))

	ctx := context.Background()
	rec, err := store.CreateMatch(ctx, "test match")
	require.NoError(t, err)
	rec.WhiteID, rec.BlackID = "alice", "bob"
	require.NoError(t, store.UpdateMatch(ctx, rec))
	return &harness{t: t, h: h, store: store, reg: reg, archive: arch, matchID: rec.ID}
}

func (x *harness) send(c *recConn, cmd chessdto.Command) {
	x.t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(x.t, err)
	x.h.Handle(context.Background(), c, raw)
}

func (x *harness) connect(user string) *recConn {
	x.t.Helper()
	c := &recConn{id: "conn-" + user}
	x.send(c, chessdto.Command{CommandType: chessdto.CommandConnect, AuthToken: "tok-" + user, GameID: x.matchID})
	require.Empty(x.t, c.ofType(chessdto.MessageError), "connect %s", user)
	return c
}

func (x *harness) move(c *recConn, user, uci string) {
	x.t.Helper()
	m, err := chess.ParseUCI(uci)
	require.NoError(x.t, err)
	x.send(c, chessdto.Command{CommandType: chessdto.CommandMakeMove, AuthToken: "tok-" + user, GameID: x.matchID, Move: &m})
}

func (x *harness) record() *match.Record {
	x.t.Helper()
	rec, err := x.store.GetMatch(context.Background(), x.matchID)
	require.NoError(x.t, err)
	return rec
}

func TestConnectUnknownCredential(t *testing.T) {
	x := newHarness(t)
	c := &recConn{id: "c1"}
	x.send(c, chessdto.Command{CommandType: chessdto.CommandConnect, AuthToken: "nope", GameID: x.matchID})

	msgs := c.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, chessdto.MessageError, msgs[0].ServerMessageType)
	assert.Equal(t, "Error: bad auth", msgs[0].ErrorMessage)
	_, ok := x.reg.Lookup("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, x.reg.Count(x.matchID))
}

func TestConnectUnknownMatch(t *testing.T) {
	x := newHarness(t)
	c := &recConn{id: "c1"}
	x.send(c, chessdto.Command{CommandType: chessdto.CommandConnect, AuthToken: "tok-alice", GameID: 999})
	assert.Equal(t, []string{"Error: bad game id"}, c.texts())
	assert.Equal(t, 0, x.reg.Count(999))
}

func TestConnectRolesAndAnnouncements(t *testing.T) {
	x := newHarness(t)
	alice := x.connect("alice")
	loads := alice.ofType(chessdto.MessageLoadGame)
	require.Len(t, loads, 1)
	assert.Equal(t, chess.White, loads[0].Game.Turn)
	assert.Equal(t, "alice", loads[0].Game.WhiteUser)
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w - - 0 1", loads[0].Game.FEN)

	bob := x.connect("bob")
	carol := x.connect("carol")
	assert.Equal(t, []string{
		"bob connected to the game as black",
		"carol connected to the game as observer",
	}, alice.texts())
	assert.Equal(t, []string{"carol connected to the game as observer"}, bob.texts())
	assert.Empty(t, carol.texts())

	e, ok := x.reg.Lookup(carol.ID())
	require.True(t, ok)
	assert.Equal(t, session.RoleObserver, e.Role)
}

func TestMoveFanOut(t *testing.T) {
	x := newHarness(t)
	alice := x.connect("alice")
	carol := x.connect("carol")
	alice.reset()
	carol.reset()

	x.move(alice, "alice", "e2e4")

	mine := alice.all()
	require.Len(t, mine, 1)
	assert.Equal(t, chessdto.MessageLoadGame, mine[0].ServerMessageType)
	assert.Equal(t, chess.Black, mine[0].Game.Turn)

	theirs := carol.all()
	require.Len(t, theirs, 2)
	assert.Equal(t, chessdto.MessageLoadGame, theirs[0].ServerMessageType)
	assert.Equal(t, chessdto.MessageNotification, theirs[1].ServerMessageType)
	assert.Equal(t, "alice moved e4 (e2 to e4)", theirs[1].Message)
	assert.Equal(t, []string{"e4"}, theirs[0].Game.MovesSAN)

	rec := x.record()
	assert.Equal(t, chess.Black, rec.Game.Turn())
	assert.Equal(t, []string{"e2e4"}, rec.MovesUCI)
}

func TestObserverCannotResign(t *testing.T) {
	x := newHarness(t)
	x.connect("alice")
	carol := x.connect("carol")
	carol.reset()

	x.send(carol, chessdto.Command{CommandType: chessdto.CommandResign, AuthToken: "tok-carol", GameID: x.matchID})
	assert.Equal(t, []string{"Error: observers cannot resign"}, carol.texts())
	assert.False(t, x.record().Over)
}

func TestMoveRejections(t *testing.T) {
	x := newHarness(t)
	alice := x.connect("alice")
	bob := x.connect("bob")
	carol := x.connect("carol")
	for _, c := range []*recConn{alice, bob, carol} {
		c.reset()
	}

	x.move(bob, "bob", "e7e5")
	x.move(carol, "carol", "e2e4")
	x.move(alice, "alice", "e2e5")
	x.move(alice, "alice", "e3e4")
	x.move(alice, "alice", "e7e5")
	x.move(alice, "bob", "e2e4")

	assert.Equal(t, []string{"Error: not your turn"}, bob.texts())
	assert.Equal(t, []string{"Error: observers cannot make moves"}, carol.texts())
	assert.Equal(t, []string{
		"Error: e2e5 is not a legal move",
		"Error: no piece at e3",
		"Error: the piece at e7 is not yours",
		"Error: bad auth",
	}, alice.texts())
	for _, c := range []*recConn{alice, bob, carol} {
		assert.Empty(t, c.ofType(chessdto.MessageLoadGame), "rejected moves are never broadcast")
	}

	rec := x.record()
	assert.Equal(t, chess.White, rec.Game.Turn())
	assert.Empty(t, rec.MovesUCI)
	assert.Equal(t, int64(1), rec.Version)
}

func TestCommandsRequireConnect(t *testing.T) {
	x := newHarness(t)
	c := &recConn{id: "lonely"}
	m := chess.Move{Start: chess.Pos(2, 5), End: chess.Pos(4, 5)}
	x.send(c, chessdto.Command{CommandType: chessdto.CommandMakeMove, AuthToken: "tok-alice", GameID: x.matchID, Move: &m})
	x.send(c, chessdto.Command{CommandType: chessdto.CommandLeave, AuthToken: "tok-alice", GameID: x.matchID})
	x.send(c, chessdto.Command{CommandType: chessdto.CommandResign, AuthToken: "tok-alice", GameID: x.matchID})
	assert.Equal(t, []string{
		"Error: connect to a game first",
		"Error: connect to a game first",
		"Error: connect to a game first",
	}, c.texts())
	assert.False(t, x.record().Over)
}

func TestMalformedCommands(t *testing.T) {
	x := newHarness(t)
	alice := x.connect("alice")
	alice.reset()
	for _, raw := range []string{
		`not json`,
		`{}`,
		`{"commandType":"DANCE","authToken":"tok-alice","gameID":1}`,
		`{"commandType":"MAKE_MOVE","authToken":"tok-alice","gameID":1}`,
		`{"commandType":"MAKE_MOVE","authToken":"tok-alice","gameID":1,"move":{"startPosition":{"row":9,"column":1},"endPosition":{"row":3,"column":1}}}`,
		`{"commandType":"MAKE_MOVE","authToken":"tok-alice","gameID":1,"move":{"startPosition":{"row":2,"column":1},"endPosition":{"row":3,"column":1},"promotionPiece":"PAWN"}}`,
		`{"commandType":"HIGHLIGHT","authToken":"tok-alice","gameID":1}`,
	} {
		x.h.Handle(context.Background(), alice, []byte(raw))
	}
	texts := alice.texts()
	require.Len(t, texts, 7)
	for _, s := range texts {
		assert.Equal(t, "Error: bad request", s)
	}
	assert.Equal(t, int64(1), x.record().Version)
}

func TestCheckAndCheckmate(t *testing.T) {
	x := newHarness(t)
	alice := x.connect("alice")
	bob := x.connect("bob")
	carol := x.connect("carol")

	x.move(alice, "alice", "f2f3")
	x.move(bob, "bob", "e7e5")
	x.move(alice, "alice", "g2g4")
	for _, c := range []*recConn{alice, bob, carol} {
		c.reset()
	}
	x.move(bob, "bob", "d8h4")

	mate := "Checkmate! alice (white) has been checkmated. bob wins"
	assert.Equal(t, []string{mate}, bob.texts())
	assert.Equal(t, []string{"bob moved Qh4# (d8 to h4)", mate}, alice.texts())
	assert.Equal(t, []string{"bob moved Qh4# (d8 to h4)", mate}, carol.texts())

	rec := x.record()
	assert.True(t, rec.Over)
	assert.Equal(t, match.ResultBlack, rec.Result)
	assert.Equal(t, match.TerminationCheckmate, rec.Termination)
	assert.Equal(t, []string{"f3", "e5", "g4", "Qh4#"}, rec.MovesSAN)
	require.Len(t, x.archive.recs, 1)
	assert.Equal(t, rec.ID, x.archive.recs[0].ID)

	alice.reset()
	x.move(alice, "alice", "e2e4")
	assert.Equal(t, []string{"Error: the game is over"}, alice.texts())
}

func TestCheckNotification(t *testing.T) {
	x := newHarness(t)
	alice := x.connect("alice")
	bob := x.connect("bob")
	x.move(alice, "alice", "e2e4")
	x.move(bob, "bob", "f7f6")
	alice.reset()
	bob.reset()
	x.move(alice, "alice", "d1h5")

	assert.Equal(t, []string{"bob (black) is in check"}, alice.texts())
	assert.Equal(t, []string{"alice moved Qh5+ (d1 to h5)", "bob (black) is in check"}, bob.texts())
	assert.False(t, x.record().Over)
}

func TestResign(t *testing.T) {
	x := newHarness(t)
	alice := x.connect("alice")
	bob := x.connect("bob")
	alice.reset()
	bob.reset()

	x.send(alice, chessdto.Command{CommandType: chessdto.CommandResign, AuthToken: "tok-alice", GameID: x.matchID})
	assert.Equal(t, []string{"You resigned. bob wins"}, alice.texts())
	assert.Equal(t, []string{"alice resigned. bob wins"}, bob.texts())

	rec := x.record()
	assert.True(t, rec.Over)
	assert.Equal(t, match.ResultBlack, rec.Result)
	assert.Equal(t, match.TerminationResignation, rec.Termination)
	require.Len(t, x.archive.recs, 1)

	bob.reset()
	x.send(bob, chessdto.Command{CommandType: chessdto.CommandResign, AuthToken: "tok-bob", GameID: x.matchID})
	assert.Equal(t, []string{"Error: the game is over"}, bob.texts())
}

func TestLeave(t *testing.T) {
	x := newHarness(t)
	alice := x.connect("alice")
	bob := x.connect("bob")
	carol := x.connect("carol")
	bob.reset()

	x.send(carol, chessdto.Command{CommandType: chessdto.CommandLeave, AuthToken: "tok-carol", GameID: x.matchID})
	rec := x.record()
	assert.Equal(t, int64(1), rec.Version, "observer leaving does not touch the record")

	alice.reset()
	x.send(alice, chessdto.Command{CommandType: chessdto.CommandLeave, AuthToken: "tok-alice", GameID: x.matchID})
	rec = x.record()
	assert.Empty(t, rec.WhiteID)
	assert.Equal(t, "bob", rec.BlackID)
	assert.Equal(t, []string{"carol left the game", "alice left the game"}, bob.texts())
	assert.Empty(t, alice.all(), "leaver receives nothing")
	assert.Equal(t, 1, x.reg.Count(x.matchID))

	x.move(bob, "bob", "e7e5")
	assert.Empty(t, alice.all())
}

func TestHighlight(t *testing.T) {
	x := newHarness(t)
	alice := x.connect("alice")
	alice.reset()

	pos := chess.Pos(2, 5)
	x.send(alice, chessdto.Command{CommandType: chessdto.CommandHighlight, AuthToken: "tok-alice", GameID: x.matchID, Position: &pos})
	empty := chess.Pos(4, 4)
	x.send(alice, chessdto.Command{CommandType: chessdto.CommandHighlight, AuthToken: "tok-alice", GameID: x.matchID, Position: &empty})

	loads := alice.ofType(chessdto.MessageLoadGame)
	require.Len(t, loads, 2)
	assert.ElementsMatch(t, []chess.Move{
		{Start: pos, End: chess.Pos(3, 5)},
		{Start: pos, End: chess.Pos(4, 5)},
	}, loads[0].Highlight)
	assert.Empty(t, loads[1].Highlight)

	raw, err := json.Marshal(loads[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"highlight":[`))
}

type panicResolver struct{}

func (panicResolver) Resolve(context.Context, string) (string, error) { panic("boom") }

func TestPanicDegradesToInternalError(t *testing.T) {
	store := match.NewMemoryStore()
	h := NewHandler(store, panicResolver{}, session.NewRegistry())
	c := &recConn{id: "c"}
	h.Handle(context.Background(), c, []byte(`{"commandType":"CONNECT","authToken":"x","gameID":1}`))
	assert.Equal(t, []string{"Error: internal server error"}, c.texts())
}

func TestConcurrentMovesSerialised(t *testing.T) {
	x := newHarness(t)
	a1 := &recConn{id: "a1"}
	a2 := &recConn{id: "a2"}
	x.send(a1, chessdto.Command{CommandType: chessdto.CommandConnect, AuthToken: "tok-alice", GameID: x.matchID})
	x.send(a2, chessdto.Command{CommandType: chessdto.CommandConnect, AuthToken: "tok-alice", GameID: x.matchID})
	a1.reset()
	a2.reset()

	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, tc := range []struct {
		c   *recConn
		uci string
	}{{a1, "e2e4"}, {a2, "d2d4"}} {
		wg.Add(1)
		go func(c *recConn, uci string) {
			defer wg.Done()
			<-start
			x.move(c, "alice", uci)
		}(tc.c, tc.uci)
	}
	close(start)
	wg.Wait()

	errs := len(a1.ofType(chessdto.MessageError)) + len(a2.ofType(chessdto.MessageError))
	assert.Equal(t, 1, errs, "exactly one of two racing moves wins")
	rec := x.record()
	assert.Len(t, rec.MovesUCI, 1)
	assert.Equal(t, chess.Black, rec.Game.Turn())
}

func TestReconnectMovesConnection(t *testing.T) {
	x := newHarness(t)
	other, err := x.store.CreateMatch(context.Background(), "second")
	require.NoError(t, err)
	bob := x.connect("bob")
	carol := x.connect("carol")
	bob.reset()

	x.send(carol, chessdto.Command{CommandType: chessdto.CommandConnect, AuthToken: "tok-carol", GameID: other.ID})
	assert.Equal(t, 1, x.reg.Count(x.matchID))
	assert.Equal(t, 1, x.reg.Count(other.ID))
	assert.Equal(t, []string{"carol left the game"}, bob.texts())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	x := newHarness(t)
	alice := x.connect("alice")
	x.h.Disconnect(alice.ID())
	x.h.Disconnect(alice.ID())
	assert.Equal(t, 0, x.reg.Count(x.matchID))
	assert.Equal(t, "alice", x.record().WhiteID, "closing a socket keeps the seat")
}

package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Archiver receives matches that reached a final state.
type Archiver interface {
	SaveResult(ctx context.Context, rec *Record) error
}

// Archive stores finished matches in PostgreSQL together with their PGN.
type Archive struct {
	db *sql.DB
}

const schema = `CREATE TABLE IF NOT EXISTS match_results (
    match_id     INTEGER PRIMARY KEY,
    name         TEXT NOT NULL,
    white_id     TEXT NOT NULL,
    black_id     TEXT NOT NULL,
    result       TEXT NOT NULL,
    termination  TEXT NOT NULL,
    moves_uci    JSONB NOT NULL,
    moves_san    JSONB NOT NULL,
    final_fen    TEXT NOT NULL,
    pgn          TEXT NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL,
    ended_at     TIMESTAMPTZ NOT NULL,
    duration_ms  BIGINT NOT NULL
)`

func NewArchive(ctx context.Context, databaseURL string) (*Archive, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// EnsureSchema creates the results table when missing.
func (a *Archive) EnsureSchema(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, schema)
	return err
}

// SaveResult upserts the final state of rec. Unfinished matches are ignored.
func (a *Archive) SaveResult(ctx context.Context, rec *Record) error {
	if a == nil || a.db == nil || rec == nil || !rec.Over {
		return nil
	}
	movesUCIRaw, _ := json.Marshal(rec.MovesUCI)
	movesSANRaw, _ := json.Marshal(rec.MovesSAN)
	duration := rec.UpdatedAt.Sub(rec.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	fen := ""
	if rec.Game != nil {
		fen = rec.Game.FEN()
	}

	q := `INSERT INTO match_results (
        match_id, name, white_id, black_id, result, termination,
        moves_uci, moves_san, final_fen, pgn, started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
      ) ON CONFLICT (match_id) DO UPDATE SET
        name=EXCLUDED.name,
        white_id=EXCLUDED.white_id,
        black_id=EXCLUDED.black_id,
        result=EXCLUDED.result,
        termination=EXCLUDED.termination,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        final_fen=EXCLUDED.final_fen,
        pgn=EXCLUDED.pgn,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := a.db.ExecContext(ctx, q,
		rec.ID, rec.Name, rec.WhiteID, rec.BlackID,
		rec.Result, rec.Termination,
		string(movesUCIRaw), string(movesSANRaw), fen,
		BuildPGN(rec),
		rec.CreatedAt, rec.UpdatedAt, duration,
	)
	if err != nil {
		return fmt.Errorf("archive match %d: %w", rec.ID, err)
	}
	return nil
}

func resultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case ResultWhite:
		return "1-0"
	case ResultBlack:
		return "0-1"
	case ResultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders the SAN history of rec as PGN text.
func BuildPGN(rec *Record) string {
	if rec == nil {
		return ""
	}
	res := resultToPGN(rec.Result)
	date := rec.UpdatedAt
	if date.IsZero() {
		date = time.Now()
	}
	var b strings.Builder
	b.WriteString("[Event \"" + sanitizePGN(rec.Name) + "\"]\n")
	b.WriteString("[Site \"cheese-chess-server\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[Round \"%d\"]\n", rec.ID))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", orUnknown(rec.WhiteID)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", orUnknown(rec.BlackID)))
	if t := strings.TrimSpace(rec.Termination); t != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(t)))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", res))

	for i := 0; i < len(rec.MovesSAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(rec.MovesSAN[i])))
		if i+1 < len(rec.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(rec.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(res)
	return b.String()
}

func orUnknown(s string) string {
	if s = sanitizePGN(s); s == "" {
		return "?"
	}
	return s
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

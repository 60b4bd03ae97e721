package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vantagesign/signdeck/internal/fleet"
)

// timeLayout is fixed-width (zero-padded fraction) so the TEXT columns
// sort lexicographically in chronological order. RFC3339Nano would trim
// trailing zeros and break ORDER BY.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// CommandLog is the audit history of dispatched commands, capped at
// Limit rows. It implements fleet.Recorder.
type CommandLog struct {
	DB *sql.DB
	// Limit caps retained rows; zero means unlimited.
	Limit int
}

// Record upserts a finished command and prunes history beyond the cap.
func (l *CommandLog) Record(ctx context.Context, cmd fleet.Command) error {
	_, err := l.DB.ExecContext(ctx,
		`INSERT INTO command_log (id, device, type, state, detail, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id, device) DO UPDATE SET
		   state = excluded.state,
		   detail = excluded.detail,
		   updated_at = excluded.updated_at`,
		cmd.ID, cmd.Device, string(cmd.Type), string(cmd.State), cmd.Detail,
		cmd.CreatedAt.UTC().Format(timeLayout),
		cmd.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert command log: %w", err)
	}

	if l.Limit > 0 {
		if err := l.prune(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (l *CommandLog) prune(ctx context.Context) error {
	_, err := l.DB.ExecContext(ctx,
		`DELETE FROM command_log WHERE (id, device) NOT IN (
		   SELECT id, device FROM command_log
		   ORDER BY created_at DESC, id, device
		   LIMIT ?
		 )`, l.Limit)
	if err != nil {
		return fmt.Errorf("prune command log: %w", err)
	}
	return nil
}

// List returns the most recent commands, newest first, at most limit
// rows (or everything when limit <= 0).
func (l *CommandLog) List(ctx context.Context, limit int) ([]fleet.Command, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := l.DB.QueryContext(ctx,
		`SELECT id, device, type, state, detail, created_at, updated_at
		 FROM command_log
		 ORDER BY created_at DESC, id, device
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list command log: %w", err)
	}
	defer rows.Close()

	var out []fleet.Command
	for rows.Next() {
		var cmd fleet.Command
		var cmdType, state, createdAt, updatedAt string
		if err := rows.Scan(&cmd.ID, &cmd.Device, &cmdType, &state, &cmd.Detail, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan command log row: %w", err)
		}
		cmd.Type = fleet.CommandType(cmdType)
		cmd.State = fleet.State(state)
		if cmd.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if cmd.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

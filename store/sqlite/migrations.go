package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the tickstream store (SQLite).
//
// SQLite has no row locks to lean on, so settlement checks live in
// triggers on tickstream_settlements: inserting a settlement row either
// passes every guard and applies the debit and tick advance, or aborts the
// whole statement.
var Migrations = migrate.NewGroup("tickstream")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tickstream_streams",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tickstream_streams (
    id               TEXT PRIMARY KEY,
    creator          TEXT NOT NULL,
    price_per_second INTEGER NOT NULL CHECK (price_per_second >= 0),
    last_tick        INTEGER NOT NULL DEFAULT 0 CHECK (last_tick BETWEEN 0 AND 4294967295),
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_tickstream_streams_creator ON tickstream_streams (creator);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tickstream_streams`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tickstream_reservations",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tickstream_reservations (
    stream_id  TEXT NOT NULL REFERENCES tickstream_streams (id),
    viewer     TEXT NOT NULL,
    amount     INTEGER NOT NULL CHECK (amount >= 0),
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (stream_id, viewer)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tickstream_reservations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tickstream_settlements",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tickstream_settlements (
    id         TEXT PRIMARY KEY,
    stream_id  TEXT NOT NULL REFERENCES tickstream_streams (id),
    viewer     TEXT NOT NULL,
    creator    TEXT NOT NULL,
    ticks      INTEGER NOT NULL CHECK (ticks > 0),
    cost       INTEGER NOT NULL CHECK (cost >= 0),
    from_tick  INTEGER NOT NULL,
    to_tick    INTEGER NOT NULL,
    settled_at TEXT NOT NULL DEFAULT (datetime('now')),
    CHECK (to_tick = from_tick + ticks)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tickstream_settlements_range ON tickstream_settlements (stream_id, from_tick);
CREATE INDEX IF NOT EXISTS idx_tickstream_settlements_viewer ON tickstream_settlements (stream_id, viewer);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tickstream_settlements`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tickstream_settle_triggers",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TRIGGER IF NOT EXISTS trg_tickstream_settle_guard
BEFORE INSERT ON tickstream_settlements
BEGIN
    SELECT RAISE(ABORT, '`+abortStreamNotFound+`')
     WHERE NOT EXISTS (SELECT 1 FROM tickstream_streams WHERE id = NEW.stream_id);
    SELECT RAISE(ABORT, '`+abortTickConflict+`')
     WHERE (SELECT last_tick FROM tickstream_streams WHERE id = NEW.stream_id) != NEW.from_tick;
    SELECT RAISE(ABORT, '`+abortReservationNotFound+`')
     WHERE NOT EXISTS (SELECT 1 FROM tickstream_reservations WHERE stream_id = NEW.stream_id AND viewer = NEW.viewer);
    SELECT RAISE(ABORT, '`+abortInsufficientBalance+`')
     WHERE (SELECT amount FROM tickstream_reservations WHERE stream_id = NEW.stream_id AND viewer = NEW.viewer) < NEW.cost;
END;

CREATE TRIGGER IF NOT EXISTS trg_tickstream_settle_apply
AFTER INSERT ON tickstream_settlements
BEGIN
    UPDATE tickstream_reservations
       SET amount = amount - NEW.cost, updated_at = NEW.settled_at
     WHERE stream_id = NEW.stream_id AND viewer = NEW.viewer;
    UPDATE tickstream_streams
       SET last_tick = NEW.to_tick, updated_at = NEW.settled_at
     WHERE id = NEW.stream_id;
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TRIGGER IF EXISTS trg_tickstream_settle_apply;
DROP TRIGGER IF EXISTS trg_tickstream_settle_guard;
`)
				return err
			},
		},
	)
}

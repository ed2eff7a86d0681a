package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the tickstream store.
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
    price_per_second NUMERIC(20,0) NOT NULL CHECK (price_per_second >= 0),
    last_tick        BIGINT NOT NULL DEFAULT 0 CHECK (last_tick BETWEEN 0 AND 4294967295),
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    amount     NUMERIC(20,0) NOT NULL CHECK (amount >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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
    ticks      BIGINT NOT NULL CHECK (ticks > 0),
    cost       NUMERIC(20,0) NOT NULL CHECK (cost >= 0),
    from_tick  BIGINT NOT NULL,
    to_tick    BIGINT NOT NULL,
    settled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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
	)
}

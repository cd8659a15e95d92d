package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/voicelead/calltrack/internal/config"
	"github.com/voicelead/calltrack/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	minConns := cfg.MinConns
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests and by
// subsystems that share a pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS organizations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS phone_routes (
	id                 TEXT PRIMARY KEY,
	tracking_number    TEXT NOT NULL,
	destination_number TEXT NOT NULL,
	campaign           TEXT,
	is_active          BOOLEAN NOT NULL DEFAULT TRUE,
	organization_id    TEXT NOT NULL REFERENCES organizations(id),
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_phone_routes_generic
	ON phone_routes(tracking_number, organization_id)
	WHERE campaign IS NULL AND is_active;
CREATE INDEX IF NOT EXISTS idx_phone_routes_tracking
	ON phone_routes(tracking_number) WHERE is_active;

CREATE TABLE IF NOT EXISTS tracking_sources (
	id              TEXT PRIMARY KEY,
	tracking_number TEXT NOT NULL,
	utm_source      TEXT,
	utm_medium      TEXT,
	utm_campaign    TEXT,
	utm_content     TEXT,
	utm_term        TEXT,
	gclid           TEXT,
	organization_id TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_call_at    TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_tracking_sources_gclid
	ON tracking_sources(tracking_number, gclid) WHERE gclid IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS uq_tracking_sources_campaign
	ON tracking_sources(tracking_number, utm_campaign)
	WHERE gclid IS NULL AND utm_campaign IS NOT NULL;

CREATE TABLE IF NOT EXISTS calls (
	id                 TEXT PRIMARY KEY,
	call_sid           TEXT NOT NULL UNIQUE,
	from_number        TEXT NOT NULL,
	to_number          TEXT NOT NULL,
	destination_number TEXT,
	status             TEXT NOT NULL,
	duration_seconds   INTEGER NOT NULL DEFAULT 0,
	recording_url      TEXT,
	recording_sid      TEXT,
	tags               TEXT,
	campaign           TEXT,
	tracking_source_id TEXT REFERENCES tracking_sources(id),
	organization_id    TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_calls_org_created ON calls(organization_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_calls_from ON calls(from_number);

CREATE TABLE IF NOT EXISTS contacts (
	id                 TEXT PRIMARY KEY,
	phone_number       TEXT NOT NULL,
	name               TEXT NOT NULL,
	email              TEXT,
	contact_preference TEXT,
	is_manual          BOOLEAN NOT NULL DEFAULT FALSE,
	organization_id    TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_activity_at   TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_contacts_phone_org
	ON contacts(phone_number, organization_id);

CREATE TABLE IF NOT EXISTS pipeline_stages (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	position        INTEGER NOT NULL,
	color           TEXT NOT NULL DEFAULT '#808080',
	is_default      BOOLEAN NOT NULL DEFAULT FALSE,
	organization_id TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_pipeline_stages_default
	ON pipeline_stages(organization_id) WHERE is_default;

CREATE TABLE IF NOT EXISTS deals (
	id               TEXT PRIMARY KEY,
	contact_id       TEXT NOT NULL REFERENCES contacts(id),
	stage_id         TEXT NOT NULL REFERENCES pipeline_stages(id),
	status           TEXT NOT NULL DEFAULT 'OPEN',
	title            TEXT NOT NULL,
	source           TEXT NOT NULL,
	organization_id  TEXT NOT NULL,
	last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_deals_open_per_contact
	ON deals(contact_id, organization_id) WHERE status = 'OPEN';
CREATE INDEX IF NOT EXISTS idx_deals_stage ON deals(stage_id);

CREATE TABLE IF NOT EXISTS timeline_events (
	id          TEXT PRIMARY KEY,
	contact_id  TEXT NOT NULL REFERENCES contacts(id),
	deal_id     TEXT REFERENCES deals(id),
	event_type  TEXT NOT NULL,
	description TEXT NOT NULL,
	metadata    JSONB,
	created_by  TEXT NOT NULL DEFAULT 'system',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_timeline_contact ON timeline_events(contact_id, created_at DESC);

CREATE TABLE IF NOT EXISTS ai_analysis (
	id            TEXT PRIMARY KEY,
	call_sid      TEXT NOT NULL UNIQUE REFERENCES calls(call_sid),
	transcription TEXT NOT NULL,
	summary       TEXT NOT NULL,
	sentiment     TEXT NOT NULL,
	tags          JSONB NOT NULL DEFAULT '[]',
	fallback      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres duplicate-key error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations must be appended to, never edited.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS users (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS members (
	project_id UUID NOT NULL,
	user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	PRIMARY KEY (project_id, user_id)
);

CREATE TABLE IF NOT EXISTS work_packages (
	id         UUID PRIMARY KEY,
	project_id UUID NOT NULL,
	subject    TEXT NOT NULL,
	start_date DATE,
	due_date   DATE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notifications (
	id                    UUID PRIMARY KEY,
	reason                SMALLINT NOT NULL CHECK (reason BETWEEN 0 AND 11),
	recipient_id          UUID NOT NULL,
	actor_id              UUID NOT NULL,
	project_id            UUID NOT NULL,
	journal_id            UUID NOT NULL,
	resource_type         TEXT NOT NULL,
	resource_id           UUID NOT NULL,
	read_ian              BOOLEAN NOT NULL DEFAULT FALSE,
	read_at               TIMESTAMPTZ,
	mail_reminder_sent    BOOLEAN NOT NULL DEFAULT FALSE,
	mail_reminder_sent_at TIMESTAMPTZ,
	mail_alert_sent       BOOLEAN NOT NULL DEFAULT FALSE,
	mail_alert_sent_at    TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient
	ON notifications(recipient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_unsent_reminder
	ON notifications(created_at) WHERE mail_reminder_sent = FALSE;
CREATE INDEX IF NOT EXISTS idx_notifications_unsent_alert
	ON notifications(created_at) WHERE mail_alert_sent = FALSE;
CREATE INDEX IF NOT EXISTS idx_notifications_resource
	ON notifications(resource_type, resource_id);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS watchers (
	id            UUID PRIMARY KEY,
	resource_type TEXT NOT NULL,
	resource_id   UUID NOT NULL,
	user_id       UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (resource_type, resource_id, user_id)
);
`,
	},
	{
		version: 3,
		sql: `
CREATE INDEX IF NOT EXISTS idx_notifications_read_at
	ON notifications(read_at) WHERE read_ian = TRUE;
`,
	},
}

// Migrate applies every outstanding migration, each in its own transaction.
// It returns the schema version after the run.
func Migrate(ctx context.Context, db *sqlx.DB) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("creating schema_version table: %w", err)
	}

	current := 0
	if err := db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}

	base := NewBaseRepository(db, nil)
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := base.WithTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, m.version)
			return err
		})
		if err != nil {
			return current, fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		current = m.version
	}

	return current, nil
}

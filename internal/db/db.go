// Package db handles SQLite initialisation and schema migrations.
//
// Each entity is one table. Nested values (permission bundles, audit
// details, brought items, extracted upload rows) live in JSON text columns
// so a row reads back as a whole document.
package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	// Registers the pure-Go "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// Open opens (or creates) the SQLite database at dsn and runs all migrations.
//
// Recommended DSN formats for modernc.org/sqlite:
//   - Production file: "gatepass.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
//   - Tests:           "file:testXYZ?mode=memory&cache=shared&_foreign_keys=on"
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("database ready", "dsn", dsn)
	return db, nil
}

// migrate runs each DDL statement in the schema individually. The drivers
// only execute the first statement of a multi-statement Exec.
func migrate(db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

// Tables lists every table the schema creates.
var Tables = []string{"users", "visitor_requests", "check_in_outs", "delegations", "audit_logs", "bulk_uploads"}

// schema contains every CREATE statement for the application.
//
//	users            single table for all roles; the delegation_* columns
//	                 are the projection of the user's active received
//	                 delegation.
//
//	visitor_requests approval_code is UNIQUE but nullable, so only approved
//	                 requests occupy the index. version is bumped by every
//	                 compare-and-swap status transition.
//
//	check_in_outs    the partial unique index allows at most one open
//	                 (check_out_time IS NULL) record per request.
//
//	audit_logs       append only; nothing updates or deletes rows.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                    TEXT PRIMARY KEY,
    username              TEXT NOT NULL UNIQUE,
    email                 TEXT NOT NULL UNIQUE,
    password_hash         TEXT NOT NULL,
    full_name             TEXT NOT NULL,
    employee_id           TEXT NOT NULL DEFAULT '',
    role                  TEXT NOT NULL CHECK(role IN ('admin','department','security','gate')),
    department            TEXT NOT NULL DEFAULT '',
    department_type       TEXT NOT NULL DEFAULT '',
    active                INTEGER NOT NULL DEFAULT 1,
    bulk_upload_enabled   INTEGER NOT NULL DEFAULT 0,
    last_login            DATETIME,
    created_by            TEXT NOT NULL DEFAULT '',
    is_delegated          INTEGER NOT NULL DEFAULT 0,
    delegated_by          TEXT NOT NULL DEFAULT '',
    delegation_start      DATETIME,
    delegation_end        DATETIME,
    delegated_permissions TEXT NOT NULL DEFAULT '',
    created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS visitor_requests (
    id              TEXT PRIMARY KEY,
    visitor_name    TEXT NOT NULL,
    visitor_id      TEXT NOT NULL,
    national_id     TEXT NOT NULL,
    phone           TEXT NOT NULL,
    email           TEXT NOT NULL DEFAULT '',
    photo           TEXT NOT NULL DEFAULT '',
    purpose         TEXT NOT NULL,
    brought_items   TEXT NOT NULL DEFAULT '[]',
    department      TEXT NOT NULL DEFAULT '',
    department_type TEXT NOT NULL,
    gate            TEXT NOT NULL DEFAULT '',
    access_type     TEXT NOT NULL DEFAULT '',
    is_group_visit  INTEGER NOT NULL DEFAULT 0,
    company_name    TEXT NOT NULL DEFAULT '',
    group_size      INTEGER NOT NULL DEFAULT 0,
    scheduled_date  TEXT NOT NULL,
    scheduled_time  TEXT NOT NULL,
    duration        INTEGER NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending'
                        CHECK(status IN ('pending','approved','declined','checked_in','checked_out','expired')),
    reviewed_by     TEXT NOT NULL DEFAULT '',
    reviewed_at     DATETIME,
    review_comments TEXT NOT NULL DEFAULT '',
    approval_code   TEXT UNIQUE,
    priority        TEXT NOT NULL DEFAULT 'normal',
    location        TEXT NOT NULL DEFAULT '',
    submitted_by    TEXT NOT NULL REFERENCES users(id),
    version         INTEGER NOT NULL DEFAULT 1,
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_visitor_requests_status ON visitor_requests(status);
CREATE INDEX IF NOT EXISTS idx_visitor_requests_submitted_by ON visitor_requests(submitted_by);
CREATE INDEX IF NOT EXISTS idx_visitor_requests_scheduled_date ON visitor_requests(scheduled_date);

CREATE TABLE IF NOT EXISTS check_in_outs (
    id                 TEXT PRIMARY KEY,
    visitor_request_id TEXT NOT NULL REFERENCES visitor_requests(id),
    check_in_time      DATETIME NOT NULL,
    check_in_by        TEXT NOT NULL,
    check_out_time     DATETIME,
    check_out_by       TEXT NOT NULL DEFAULT '',
    duration_minutes   INTEGER,
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (check_out_time IS NULL OR check_out_time > check_in_time)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_check_in_outs_open
    ON check_in_outs(visitor_request_id) WHERE check_out_time IS NULL;

CREATE TABLE IF NOT EXISTS delegations (
    id               TEXT PRIMARY KEY,
    requester_id     TEXT NOT NULL REFERENCES users(id),
    delegate_id      TEXT NOT NULL REFERENCES users(id),
    reason           TEXT NOT NULL,
    start_date       DATETIME NOT NULL,
    end_date         DATETIME NOT NULL,
    status           TEXT NOT NULL DEFAULT 'pending'
                         CHECK(status IN ('pending','approved','rejected','active','completed','cancelled')),
    approved_by      TEXT NOT NULL DEFAULT '',
    approved_at      DATETIME,
    rejection_reason TEXT NOT NULL DEFAULT '',
    permissions      TEXT NOT NULL DEFAULT '{}',
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_delegations_requester ON delegations(requester_id);
CREATE INDEX IF NOT EXISTS idx_delegations_delegate ON delegations(delegate_id);

CREATE TABLE IF NOT EXISTS audit_logs (
    id                 TEXT PRIMARY KEY,
    action             TEXT NOT NULL,
    user_id            TEXT NOT NULL,
    employee_id        TEXT NOT NULL DEFAULT '',
    target_user_id     TEXT NOT NULL DEFAULT '',
    target_employee_id TEXT NOT NULL DEFAULT '',
    details            TEXT NOT NULL DEFAULT '{}',
    context            TEXT NOT NULL DEFAULT '',
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);

CREATE TABLE IF NOT EXISTS bulk_uploads (
    id             TEXT PRIMARY KEY,
    original_name  TEXT NOT NULL,
    stored_name    TEXT NOT NULL,
    size           INTEGER NOT NULL,
    mime_type      TEXT NOT NULL,
    uploaded_by    TEXT NOT NULL REFERENCES users(id),
    status         TEXT NOT NULL DEFAULT 'uploaded'
                       CHECK(status IN ('uploaded','processing','completed','failed')),
    error          TEXT NOT NULL DEFAULT '',
    extracted_rows TEXT NOT NULL DEFAULT '[]',
    total_rows     INTEGER NOT NULL DEFAULT 0,
    imported_rows  INTEGER NOT NULL DEFAULT 0,
    failed_rows    INTEGER NOT NULL DEFAULT 0,
    processed_at   DATETIME,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)
`

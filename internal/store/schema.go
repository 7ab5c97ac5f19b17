package store

// Nullable key parts of budget_lines are stored as '' so the UNIQUE
// constraint (and the upsert conflict target) treats "none" as equal.
// Amounts are integer cents.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
    id                   TEXT PRIMARY KEY,
    name                 TEXT NOT NULL DEFAULT '',
    current_budget_cents INTEGER NOT NULL DEFAULT 0,
    budget_cached_at     TEXT
);

CREATE TABLE IF NOT EXISTS cost_codes (
    id                   TEXT PRIMARY KEY,
    title                TEXT NOT NULL,
    division_id          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cost_types (
    id                   TEXT PRIMARY KEY,
    code                 TEXT NOT NULL,
    description          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sub_jobs (
    id                   TEXT PRIMARY KEY,
    code                 TEXT NOT NULL,
    name                 TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS budget_lines (
    id                    TEXT PRIMARY KEY,
    project_id            TEXT NOT NULL,
    cost_code_id          TEXT NOT NULL,
    cost_type_id          TEXT NOT NULL DEFAULT '',
    sub_job_id            TEXT NOT NULL DEFAULT '',
    description           TEXT NOT NULL DEFAULT '',
    quantity              TEXT,
    unit_of_measure       TEXT NOT NULL DEFAULT '',
    unit_cost_cents       INTEGER,
    original_amount_cents INTEGER NOT NULL DEFAULT 0,
    created_by            TEXT NOT NULL DEFAULT '',
    created_at            TEXT NOT NULL,
    updated_at            TEXT NOT NULL,
    deleted_at            TEXT,
    UNIQUE (project_id, cost_code_id, cost_type_id, sub_job_id)
);

CREATE TABLE IF NOT EXISTS budget_modifications (
    id                   TEXT PRIMARY KEY,
    project_id           TEXT NOT NULL,
    number               TEXT NOT NULL,
    title                TEXT NOT NULL DEFAULT '',
    from_cost_code       TEXT NOT NULL,
    to_cost_code         TEXT NOT NULL,
    amount_cents         INTEGER NOT NULL,
    status               TEXT NOT NULL,
    date                 TEXT NOT NULL,
    created_by           TEXT NOT NULL DEFAULT '',
    updated_at           TEXT NOT NULL,
    UNIQUE (project_id, number)
);

CREATE TABLE IF NOT EXISTS change_orders (
    id                   TEXT PRIMARY KEY,
    project_id           TEXT NOT NULL,
    number               TEXT NOT NULL DEFAULT '',
    cost_code_id         TEXT NOT NULL,
    amount_cents         INTEGER NOT NULL,
    status               TEXT NOT NULL,
    created_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS commitments (
    id                     TEXT PRIMARY KEY,
    project_id             TEXT NOT NULL,
    kind                   TEXT NOT NULL,
    number                 TEXT NOT NULL DEFAULT '',
    cost_code_id           TEXT NOT NULL DEFAULT '',
    original_cents         INTEGER NOT NULL DEFAULT 0,
    approved_co_cents      INTEGER NOT NULL DEFAULT 0,
    revised_cents          INTEGER,
    invoiced_cents         INTEGER NOT NULL DEFAULT 0,
    payments_cents         INTEGER NOT NULL DEFAULT 0,
    retention_cents        INTEGER NOT NULL DEFAULT 0,
    status                 TEXT NOT NULL,
    created_at             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS direct_costs (
    id                   TEXT PRIMARY KEY,
    project_id           TEXT NOT NULL,
    cost_code_id         TEXT NOT NULL,
    cost_type            TEXT NOT NULL DEFAULT '',
    amount_cents         INTEGER NOT NULL,
    approved             INTEGER NOT NULL DEFAULT 0,
    date                 TEXT NOT NULL,
    created_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS budget_lock_state (
    project_id           TEXT PRIMARY KEY,
    locked               INTEGER NOT NULL DEFAULT 0,
    locked_at            TEXT,
    locked_by            TEXT NOT NULL DEFAULT '',
    unlocked_at          TEXT,
    unlocked_by          TEXT NOT NULL DEFAULT '',
    version              INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS lock_events (
    seq                  INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id           TEXT NOT NULL,
    action               TEXT NOT NULL,
    actor_id             TEXT NOT NULL,
    at                   TEXT NOT NULL,
    version              INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_budget_lines_project ON budget_lines(project_id);
CREATE INDEX IF NOT EXISTS idx_modifications_project ON budget_modifications(project_id, status);
CREATE INDEX IF NOT EXISTS idx_change_orders_project ON change_orders(project_id);
CREATE INDEX IF NOT EXISTS idx_commitments_project ON commitments(project_id);
CREATE INDEX IF NOT EXISTS idx_direct_costs_project ON direct_costs(project_id);
CREATE INDEX IF NOT EXISTS idx_lock_events_project ON lock_events(project_id, seq);
`

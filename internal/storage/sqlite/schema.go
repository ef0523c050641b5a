package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS segments (
    id TEXT PRIMARY KEY,
    side TEXT NOT NULL,
    zone_code TEXT,
    tariff_class TEXT,
    type TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS segment_overrides (
    segment_id TEXT NOT NULL,
    window_id INTEGER NOT NULL,
    window_json TEXT NOT NULL,
    PRIMARY KEY (segment_id, window_id),
    FOREIGN KEY (segment_id) REFERENCES segments(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tariff_windows (
    tariff_class TEXT NOT NULL,
    window_id INTEGER NOT NULL,
    window_json TEXT NOT NULL,
    PRIMARY KEY (tariff_class, window_id)
);

CREATE TABLE IF NOT EXISTS budget_ledger (
    vehicle_id TEXT NOT NULL,
    anchor_date TEXT NOT NULL,
    minutes_used INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (vehicle_id, anchor_date)
);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    vehicle_id TEXT NOT NULL,
    segment_id TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    planned_end_at TIMESTAMP NOT NULL,
    stopped_at TIMESTAMP,
    status TEXT NOT NULL,
    paid_minutes INTEGER NOT NULL DEFAULT 0,
    free_minutes_charged INTEGER NOT NULL DEFAULT 0,
    billable BOOLEAN NOT NULL DEFAULT 0,
    uses_budget BOOLEAN NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_due ON sessions(status, planned_end_at);
CREATE INDEX IF NOT EXISTS idx_sessions_vehicle ON sessions(vehicle_id);
`

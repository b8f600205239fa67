package store

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    trigger TEXT NOT NULL,
    dry_run BOOLEAN NOT NULL DEFAULT 0,
    state TEXT NOT NULL,
    version TEXT NOT NULL DEFAULT '',
    tag TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS transitions (
    run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    from_state TEXT NOT NULL,
    to_state TEXT NOT NULL,
    at TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS builds (
    run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
    platform TEXT NOT NULL,
    archive TEXT NOT NULL DEFAULT '',
    sha256 TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, platform)
);

CREATE TABLE IF NOT EXISTS releases (
    run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
    tag TEXT NOT NULL,
    url TEXT NOT NULL,
    assets TEXT NOT NULL,
    published_at TEXT NOT NULL,
    PRIMARY KEY (run_id)
);

CREATE TABLE IF NOT EXISTS formula_prs (
    run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
    branch TEXT NOT NULL,
    url TEXT NOT NULL DEFAULT '',
    reused BOOLEAN NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_releases_tag ON releases(tag);
`

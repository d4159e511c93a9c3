package store

// schema is the baseline DDL applied on every startup via `CREATE TABLE IF
// NOT EXISTS` / `CREATE INDEX IF NOT EXISTS`, so opening an existing
// catalogue is always idempotent. Structured the way the teacher's
// internal/storage/sqlite/schema.go lays out one big versioned literal,
// grouped table-by-table with inline comments noting why a column exists.
const schema = `
CREATE TABLE IF NOT EXISTS hubs (
    id TEXT PRIMARY KEY,
    universe_id TEXT,
    display_name TEXT NOT NULL,
    display_name_norm TEXT NOT NULL, -- trimmed+lowered, NFC-normalised; lookup key
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_hubs_display_name_norm ON hubs(display_name_norm);

CREATE TABLE IF NOT EXISTS works (
    id TEXT PRIMARY KEY,
    hub_id TEXT, -- nullable: orphaned when owning Hub is deleted
    media_type TEXT NOT NULL DEFAULT 'unknown',
    sequence_index INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (hub_id) REFERENCES hubs(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_works_hub_id ON works(hub_id);

CREATE TABLE IF NOT EXISTS editions (
    id TEXT PRIMARY KEY,
    work_id TEXT NOT NULL,
    format_label TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (work_id) REFERENCES works(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_editions_work_id ON editions(work_id);

CREATE TABLE IF NOT EXISTS media_assets (
    id TEXT PRIMARY KEY,
    edition_id TEXT NOT NULL,
    content_hash TEXT NOT NULL UNIQUE, -- identity anchor; renames reconcile through this
    file_path_root TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'normal',
    manifest_json TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (edition_id) REFERENCES editions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_media_assets_edition_id ON media_assets(edition_id);
CREATE INDEX IF NOT EXISTS idx_media_assets_status ON media_assets(status);

-- Append-only: rows are never UPDATEd or DELETEd by application code.
CREATE TABLE IF NOT EXISTS metadata_claims (
    id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL,
    entity_type TEXT NOT NULL DEFAULT 'work', -- 'work' | 'edition' — polymorphic target discriminator, see DESIGN.md
    provider_id TEXT NOT NULL,
    claim_key TEXT NOT NULL,
    claim_value TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0,
    claimed_at DATETIME NOT NULL,
    is_user_locked INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_claims_entity ON metadata_claims(entity_id);
CREATE INDEX IF NOT EXISTS idx_claims_entity_key ON metadata_claims(entity_id, claim_key);

-- Mutable: one row per (entity_id, key), replaced wholesale on each re-score.
CREATE TABLE IF NOT EXISTS canonical_values (
    entity_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    last_scored_at DATETIME NOT NULL,
    PRIMARY KEY (entity_id, key)
);

CREATE TABLE IF NOT EXISTS provider_registrations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    default_weight REAL NOT NULL DEFAULT 1.0,
    field_weights_json TEXT NOT NULL DEFAULT '{}'
);

-- Append-only audit trail, pruned from the oldest end by prune_log.
CREATE TABLE IF NOT EXISTS transaction_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    reason TEXT, -- optional human-readable detail, e.g. an arbiter's matched identifier
    occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transaction_log_occurred_at ON transaction_log(occurred_at);

-- Internal key/value bag (Store.SetMetadata / GetMetadata), mirroring the teacher's metadata
-- table used for import hashes in internal/storage/sqlite.
CREATE TABLE IF NOT EXISTS engine_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

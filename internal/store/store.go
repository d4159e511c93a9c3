// Package store implements the engine's append-only catalogue: assets,
// hubs, works, editions, metadata claims, canonical values and the
// transaction journal, backed by a single SQLite file. Grounded on the
// teacher's internal/storage (interface) and internal/storage/sqlite
// (implementation) packages: a single-writer-friendly connection, WAL mode,
// foreign keys on, and an idiomatic withTx helper wrapping database/sql.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"golang.org/x/text/unicode/norm"

	"github.com/localfirst/mediaengine/internal/types"
)

// Store is the engine's single catalogue connection. It is safe for
// concurrent use: SQLite under WAL allows concurrent readers alongside the
// single writer database/sql itself serializes onto this *sql.DB.
type Store struct {
	db   *sql.DB
	lock *flock.Flock // held for the process lifetime; see Open
	path string
}

// Open opens (creating if absent) the catalogue at path, applies the
// baseline schema and any pending migrations, and runs an integrity check.
// A failed integrity check is fatal per spec §7 StoreCorrupt: Open returns
// ErrCorrupt and the caller must refuse to start.
//
// path == ":memory:" is supported for tests and skips the file lock.
func Open(ctx context.Context, path string) (*Store, error) {
	var lck *flock.Flock
	if path != ":memory:" {
		lck = flock.New(path + ".lock")
		ok, err := lck.TryLockContext(ctx, 50*time.Millisecond)
		if err != nil {
			return nil, fmt.Errorf("%w: acquire catalogue lock: %v", ErrUnavailable, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: catalogue is locked by another process", ErrUnavailable)
		}
	}

	db, err := sql.Open("sqlite3", connString(path))
	if err != nil {
		if lck != nil {
			_ = lck.Unlock()
		}
		return nil, fmt.Errorf("%w: open catalogue: %v", ErrUnavailable, err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline; WAL still allows concurrent reads internally

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: enable WAL: %v", ErrCorrupt, err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: enable foreign keys: %v", ErrCorrupt, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", ErrCorrupt, err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var integrityResult string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&integrityResult); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: integrity check failed to run: %v", ErrCorrupt, err)
	}
	if integrityResult != "ok" {
		_ = db.Close()
		return nil, fmt.Errorf("%w: integrity check reported: %s", ErrCorrupt, integrityResult)
	}

	return &Store{db: db, lock: lck, path: path}, nil
}

func connString(path string) string {
	if path == ":memory:" {
		return ":memory:"
	}
	return path
}

// Close releases the database handle and the single-writer lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return err
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrUnavailable, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", ErrUnavailable, err)
	}
	committed = true
	return nil
}

// normalizeDisplayName is the case-insensitive lookup key for hub reuse
// (spec §3 Hub invariant): Unicode NFC, trimmed, lower-cased.
func normalizeDisplayName(name string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(name)))
}

// InsertAsset inserts an asset only if its content hash is new. Duplicate
// hashes are rejected silently (spec §3, §7 DuplicateHash): not an error.
func (s *Store) InsertAsset(ctx context.Context, asset *types.MediaAsset) (types.InsertResult, error) {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM media_assets WHERE content_hash = ?`, asset.ContentHash).Scan(&existing)
	if err == nil {
		return types.DuplicateHash, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("%w: check existing hash: %v", ErrUnavailable, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO media_assets (id, edition_id, content_hash, file_path_root, status, manifest_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, asset.ID, asset.EditionID, asset.ContentHash, asset.FilePathRoot, string(asset.Status), asset.ManifestJSON)
	if err != nil {
		// A UNIQUE-constraint race (two ingestions of the same file landing
		// concurrently) resolves the same way as the pre-check: silent skip.
		if strings.Contains(err.Error(), "UNIQUE") {
			return types.DuplicateHash, nil
		}
		return 0, fmt.Errorf("%w: insert asset: %v", ErrUnavailable, err)
	}
	return types.Inserted, nil
}

// FindAssetByHash looks up an asset by its content hash. Returns
// ErrNotFound if absent.
func (s *Store) FindAssetByHash(ctx context.Context, hexHash string) (*types.MediaAsset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, edition_id, content_hash, file_path_root, status, manifest_json
		FROM media_assets WHERE content_hash = ?
	`, hexHash)

	var a types.MediaAsset
	var status string
	var manifest sql.NullString
	err := row.Scan(&a.ID, &a.EditionID, &a.ContentHash, &a.FilePathRoot, &status, &manifest)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find asset by hash: %v", ErrUnavailable, err)
	}
	a.Status = types.AssetStatus(status)
	if manifest.Valid {
		a.ManifestJSON = &manifest.String
	}
	return &a, nil
}

// AppendClaim always succeeds (barring a transient store failure); claims
// are never updated in place.
func (s *Store) AppendClaim(ctx context.Context, claim *types.MetadataClaim) error {
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	if claim.ClaimedAt.IsZero() {
		claim.ClaimedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata_claims (id, entity_id, entity_type, provider_id, claim_key, claim_value, confidence, claimed_at, is_user_locked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, claim.ID, claim.EntityID, claim.EntityType, claim.ProviderID, claim.ClaimKey, claim.ClaimValue, claim.Confidence, claim.ClaimedAt, boolToInt(claim.IsUserLocked))
	if err != nil {
		return fmt.Errorf("%w: append claim: %v", ErrUnavailable, err)
	}
	return nil
}

// ListClaims returns every claim ever recorded for an entity, unfiltered,
// in insertion order.
func (s *Store) ListClaims(ctx context.Context, entityID string) ([]types.MetadataClaim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, entity_type, provider_id, claim_key, claim_value, confidence, claimed_at, is_user_locked
		FROM metadata_claims WHERE entity_id = ? ORDER BY claimed_at ASC, id ASC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("%w: list claims: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []types.MetadataClaim
	for rows.Next() {
		var c types.MetadataClaim
		var locked int
		if err := rows.Scan(&c.ID, &c.EntityID, &c.EntityType, &c.ProviderID, &c.ClaimKey, &c.ClaimValue, &c.Confidence, &c.ClaimedAt, &locked); err != nil {
			return nil, fmt.Errorf("%w: scan claim: %v", ErrUnavailable, err)
		}
		c.IsUserLocked = locked != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCanonical replaces any prior canonical row for (entity_id, key).
func (s *Store) UpsertCanonical(ctx context.Context, entityID, key, value string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canonical_values (entity_id, key, value, last_scored_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_id, key) DO UPDATE SET value = excluded.value, last_scored_at = excluded.last_scored_at
	`, entityID, key, value, ts)
	if err != nil {
		return fmt.Errorf("%w: upsert canonical: %v", ErrUnavailable, err)
	}
	return nil
}

// ListCanonical returns all canonical values for one entity.
func (s *Store) ListCanonical(ctx context.Context, entityID string) ([]types.CanonicalValue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, key, value, last_scored_at FROM canonical_values WHERE entity_id = ?
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("%w: list canonical: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []types.CanonicalValue
	for rows.Next() {
		var cv types.CanonicalValue
		if err := rows.Scan(&cv.EntityID, &cv.Key, &cv.Value, &cv.LastScoredAt); err != nil {
			return nil, fmt.Errorf("%w: scan canonical: %v", ErrUnavailable, err)
		}
		out = append(out, cv)
	}
	return out, rows.Err()
}

// ListHubs loads every Hub with its Works, and every Work's canonical
// values, using the two-query pattern spec §4.1/§9 requires: one
// hubs-LEFT-JOIN-works query ordered by creation, then a single IN-list
// query for canonical values over the collected Work ids. This avoids N+1
// queries without constructing a reference cycle at load time.
func (s *Store) ListHubs(ctx context.Context) ([]types.Hub, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.universe_id, h.display_name, h.created_at,
		       w.id, w.hub_id, w.media_type, w.sequence_index
		FROM hubs h
		LEFT JOIN works w ON w.hub_id = h.id
		ORDER BY h.created_at ASC, w.created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list hubs: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	hubIndex := make(map[string]int)
	var hubs []types.Hub
	var workIDs []string

	for rows.Next() {
		var hID, displayName string
		var universeID sql.NullString
		var createdAt time.Time
		var wID, mediaType sql.NullString
		var hubIDForWork sql.NullString
		var seq sql.NullInt64

		if err := rows.Scan(&hID, &universeID, &displayName, &createdAt, &wID, &hubIDForWork, &mediaType, &seq); err != nil {
			return nil, fmt.Errorf("%w: scan hub row: %v", ErrUnavailable, err)
		}

		idx, ok := hubIndex[hID]
		if !ok {
			h := types.Hub{ID: hID, DisplayName: displayName, CreatedAt: createdAt}
			if universeID.Valid {
				h.UniverseID = &universeID.String
			}
			hubs = append(hubs, h)
			idx = len(hubs) - 1
			hubIndex[hID] = idx
		}

		if wID.Valid {
			w := types.Work{ID: wID.String, MediaType: types.MediaType(mediaType.String)}
			if hubIDForWork.Valid {
				id := hubIDForWork.String
				w.HubID = &id
			}
			if seq.Valid {
				n := int(seq.Int64)
				w.SequenceIndex = &n
			}
			hubs[idx].Works = append(hubs[idx].Works, w)
			workIDs = append(workIDs, wID.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate hubs: %v", ErrUnavailable, err)
	}

	if len(workIDs) == 0 {
		return hubs, nil
	}

	placeholders := make([]string, len(workIDs))
	args := make([]interface{}, len(workIDs))
	for i, id := range workIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT entity_id, key, value, last_scored_at FROM canonical_values WHERE entity_id IN (%s)`, strings.Join(placeholders, ","))

	cvRows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list canonical for hubs: %v", ErrUnavailable, err)
	}
	defer cvRows.Close()

	byWork := make(map[string][]types.CanonicalValue)
	for cvRows.Next() {
		var cv types.CanonicalValue
		if err := cvRows.Scan(&cv.EntityID, &cv.Key, &cv.Value, &cv.LastScoredAt); err != nil {
			return nil, fmt.Errorf("%w: scan canonical for hubs: %v", ErrUnavailable, err)
		}
		byWork[cv.EntityID] = append(byWork[cv.EntityID], cv)
	}
	if err := cvRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate canonical for hubs: %v", ErrUnavailable, err)
	}

	for i := range hubs {
		for j := range hubs[i].Works {
			hubs[i].Works[j].CanonicalValues = byWork[hubs[i].Works[j].ID]
		}
	}
	return hubs, nil
}

// FindHubByDisplayName looks up a hub by its normalised display name
// (case-insensitive, per spec §3). Returns ErrNotFound if absent.
func (s *Store) FindHubByDisplayName(ctx context.Context, name string) (*types.Hub, error) {
	norm := normalizeDisplayName(name)
	row := s.db.QueryRowContext(ctx, `SELECT id, universe_id, display_name, created_at FROM hubs WHERE display_name_norm = ? LIMIT 1`, norm)
	var h types.Hub
	var universeID sql.NullString
	if err := row.Scan(&h.ID, &universeID, &h.DisplayName, &h.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: find hub by display name: %v", ErrUnavailable, err)
	}
	if universeID.Valid {
		h.UniverseID = &universeID.String
	}
	return &h, nil
}

// CreateHub inserts a new Hub with a freshly generated id.
func (s *Store) CreateHub(ctx context.Context, displayName string) (*types.Hub, error) {
	h := &types.Hub{ID: uuid.NewString(), DisplayName: displayName, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hubs (id, display_name, display_name_norm, created_at) VALUES (?, ?, ?, ?)
	`, h.ID, h.DisplayName, normalizeDisplayName(displayName), h.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: create hub: %v", ErrUnavailable, err)
	}
	return h, nil
}

// CreateWork always creates a new row (spec §4.4/§9: no Work deduplication
// in this version).
func (s *Store) CreateWork(ctx context.Context, hubID string, mediaType types.MediaType, sequenceIndex *int) (*types.Work, error) {
	return s.CreateWorkWithID(ctx, uuid.NewString(), hubID, mediaType, sequenceIndex)
}

// CreateWorkWithID creates a new Work row under a caller-supplied id. The
// Ingestion Orchestrator (C9) pre-assigns this id so the claims it records
// before the chain exists (spec §4.9 step 5: "scoped to a new entity id
// ... the engine pre-assigns the [id]") land on the same row ListHubs and
// the Arbiter later read canonical values from.
func (s *Store) CreateWorkWithID(ctx context.Context, id, hubID string, mediaType types.MediaType, sequenceIndex *int) (*types.Work, error) {
	w := &types.Work{ID: id, HubID: &hubID, MediaType: mediaType, SequenceIndex: sequenceIndex}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO works (id, hub_id, media_type, sequence_index) VALUES (?, ?, ?, ?)
	`, w.ID, hubID, string(mediaType), sequenceIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: create work: %v", ErrUnavailable, err)
	}
	return w, nil
}

// CreateEdition always creates a new row.
func (s *Store) CreateEdition(ctx context.Context, workID string, formatLabel *string) (*types.Edition, error) {
	e := &types.Edition{ID: uuid.NewString(), WorkID: workID, FormatLabel: formatLabel}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO editions (id, work_id, format_label) VALUES (?, ?, ?)
	`, e.ID, workID, formatLabel)
	if err != nil {
		return nil, fmt.Errorf("%w: create edition: %v", ErrUnavailable, err)
	}
	return e, nil
}

// WorksInHub lists the ids of Works already belonging to a Hub. (The
// Arbiter's circular-link guard reads Hub.Works from ListHubs instead.)
func (s *Store) WorksInHub(ctx context.Context, hubID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM works WHERE hub_id = ?`, hubID)
	if err != nil {
		return nil, fmt.Errorf("%w: list works in hub: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan work id: %v", ErrUnavailable, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LogEvent appends one transaction-journal row.
func (s *Store) LogEvent(ctx context.Context, eventType, entityType, entityID string) error {
	return s.LogEventWithReason(ctx, eventType, entityType, entityID, "")
}

// LogEventWithReason appends one transaction-journal row carrying a
// human-readable detail, e.g. the arbiter's matched hard identifier or its
// losing similarity score.
func (s *Store) LogEventWithReason(ctx context.Context, eventType, entityType, entityID, reason string) error {
	var reasonArg interface{}
	if reason != "" {
		reasonArg = reason
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_log (event_type, entity_type, entity_id, reason, occurred_at) VALUES (?, ?, ?, ?, ?)
	`, eventType, entityType, entityID, reasonArg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: log event: %v", ErrUnavailable, err)
	}
	return nil
}

// PruneLog deletes the oldest overflow rows beyond maxEntries, using a
// DELETE-with-subquery so it works without SQLite's optional DELETE...LIMIT
// extension (spec §3 TransactionLogEntry lifecycle).
func (s *Store) PruneLog(ctx context.Context, maxEntries int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM transaction_log
		WHERE id IN (
			SELECT id FROM transaction_log ORDER BY occurred_at ASC, id ASC
			LIMIT MAX(0, (SELECT COUNT(*) FROM transaction_log) - ?)
		)
	`, maxEntries)
	if err != nil {
		return 0, fmt.Errorf("%w: prune log: %v", ErrUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SetMetadata / GetMetadata back the engine_metadata key/value bag. No
// other package in this module calls them.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engine_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("%w: set metadata: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM engine_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: get metadata: %v", ErrUnavailable, err)
	}
	return value, nil
}

// UpdateAssetPath rewrites an asset's recorded file_path_root after the
// organiser moves it. The content_hash identity anchor never changes
// (spec §3): only the path bookkeeping does.
func (s *Store) UpdateAssetPath(ctx context.Context, assetID, newPath string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE media_assets SET file_path_root = ? WHERE id = ?`, newPath, assetID)
	if err != nil {
		return fmt.Errorf("%w: update asset path: %v", ErrUnavailable, err)
	}
	return nil
}

// SetAssetStatus updates an asset's lifecycle status in place.
func (s *Store) SetAssetStatus(ctx context.Context, assetID string, status types.AssetStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE media_assets SET status = ? WHERE id = ?`, string(status), assetID)
	if err != nil {
		return fmt.Errorf("%w: set asset status: %v", ErrUnavailable, err)
	}
	return nil
}

// MarkOrphaned flips an asset to Orphaned status, preserving the row
// (spec §9 open question: orphan detection on deletion).
func (s *Store) MarkOrphaned(ctx context.Context, assetID string) error {
	return s.SetAssetStatus(ctx, assetID, types.AssetOrphaned)
}

// AllAssetPaths returns (id, file_path_root) for every asset, used by the
// orphan reconciler to check disk presence without loading full rows.
func (s *Store) AllAssetPaths(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, file_path_root FROM media_assets WHERE status != ?`, string(types.AssetOrphaned))
	if err != nil {
		return nil, fmt.Errorf("%w: list asset paths: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("%w: scan asset path: %v", ErrUnavailable, err)
		}
		out[id] = path
	}
	return out, rows.Err()
}

// UpsertProviderRegistration persists one provider's trust weighting and
// reachability, replacing any prior row with the same id. Config is loaded
// once at startup per spec §9's "global mutable state" note; this lets the
// engine mirror that immutable struct into the catalogue so providers
// survive a restart independent of the JSON file and so reachability
// probes (spec §9's open question) have somewhere durable to land.
func (s *Store) UpsertProviderRegistration(ctx context.Context, p types.ProviderRegistration, reachable bool) error {
	fieldWeightsJSON, err := json.Marshal(p.FieldWeights)
	if err != nil {
		return fmt.Errorf("encode field weights for provider %s: %w", p.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_registrations (id, name, enabled, default_weight, field_weights_json, reachable)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			default_weight = excluded.default_weight,
			field_weights_json = excluded.field_weights_json,
			reachable = excluded.reachable
	`, p.ID, p.Name, boolToInt(p.Enabled), p.DefaultWeight, string(fieldWeightsJSON), boolToInt(reachable))
	if err != nil {
		return fmt.Errorf("%w: upsert provider registration: %v", ErrUnavailable, err)
	}
	return nil
}

// ListProviderRegistrations returns every registered provider. The
// reachable flag stored by UpsertProviderRegistration is not read back.
func (s *Store) ListProviderRegistrations(ctx context.Context) ([]types.ProviderRegistration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, enabled, default_weight, field_weights_json FROM provider_registrations
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list provider registrations: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []types.ProviderRegistration
	for rows.Next() {
		var p types.ProviderRegistration
		var enabled int
		var fieldWeightsJSON string
		if err := rows.Scan(&p.ID, &p.Name, &enabled, &p.DefaultWeight, &fieldWeightsJSON); err != nil {
			return nil, fmt.Errorf("%w: scan provider registration: %v", ErrUnavailable, err)
		}
		p.Enabled = enabled != 0
		if fieldWeightsJSON != "" {
			if err := json.Unmarshal([]byte(fieldWeightsJSON), &p.FieldWeights); err != nil {
				return nil, fmt.Errorf("%w: decode field weights for provider %s: %v", ErrUnavailable, p.ID, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

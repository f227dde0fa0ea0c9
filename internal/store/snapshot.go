package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registered as "sqlite"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
)

// SnapshotVersion is the snapshot format written by this build.
// Loading a newer version fails rather than guessing.
const SnapshotVersion = 1

// Snapshot is the recovery dump: the document table and the fingerprint
// map. Posting lists are not stored; they are rebuilt by normalizing titles.
type Snapshot struct {
	Version      int
	CreatedAt    time.Time
	Watermark    uint64
	Documents    []*Document // ordered by id, TitleTokens empty
	Fingerprints map[Fingerprint]DocID
}

// ErrNoSnapshot is returned by Load when no snapshot file exists.
var ErrNoSnapshot = errors.New("no snapshot found")

// SnapshotStore reads and writes snapshots as SQLite files.
type SnapshotStore struct {
	path   string
	driver string
}

// NewSnapshotStore returns a store for path. driver is a registered
// database/sql SQLite driver name: "sqlite" (modernc) or "sqlite3" (mattn).
func NewSnapshotStore(path, driver string) *SnapshotStore {
	if driver == "" {
		driver = "sqlite"
	}
	return &SnapshotStore{path: path, driver: driver}
}

// Path returns the snapshot file path.
func (s *SnapshotStore) Path() string {
	return s.path
}

// Exists reports whether a snapshot file is present.
func (s *SnapshotStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

type documentRow struct {
	ID          int64  `db:"id"`
	ChannelID   string `db:"channel_id"`
	ItemID      string `db:"item_id"`
	Title       string `db:"title"`
	Fingerprint string `db:"fingerprint"`
	MediaKind   string `db:"media_kind"`
	SizeBytes   int64  `db:"size_bytes"`
	CreatedAt   int64  `db:"created_at"`
	Tombstoned  bool   `db:"tombstoned"`
	Aliases     string `db:"aliases"`
}

type fingerprintRow struct {
	Fingerprint string `db:"fingerprint"`
	DocID       int64  `db:"doc_id"`
}

var snapshotSchema = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY,
		channel_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		title TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		media_kind TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		tombstoned INTEGER NOT NULL DEFAULT 0,
		aliases TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS fingerprints (
		fingerprint TEXT PRIMARY KEY,
		doc_id INTEGER NOT NULL
	)`,
}

func (s *SnapshotStore) open(path string, readOnly bool) (*sqlx.DB, error) {
	dsn := path
	if readOnly {
		dsn = "file:" + path + "?mode=ro"
	}
	db, err := sqlx.Open(s.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	// Single connection: pragmas apply per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}
	if !readOnly {
		pragmas = append(pragmas, "PRAGMA journal_mode = DELETE", "PRAGMA synchronous = FULL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Save writes snap to a temporary file and renames it over the snapshot,
// so a crash mid-write leaves the previous snapshot intact.
func (s *SnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return sferrors.New(sferrors.ErrCodeSnapshotFailed, "create snapshot directory", err)
	}
	tmp := s.path + ".tmp"
	_ = os.Remove(tmp)

	if err := s.write(ctx, tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return sferrors.New(sferrors.ErrCodeSnapshotFailed, "write snapshot", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return sferrors.New(sferrors.ErrCodeSnapshotFailed, "publish snapshot", err)
	}

	slog.Debug("snapshot_saved",
		slog.String("path", s.path),
		slog.Int("documents", len(snap.Documents)),
		slog.Int("fingerprints", len(snap.Fingerprints)))
	return nil
}

func (s *SnapshotStore) write(ctx context.Context, path string, snap *Snapshot) error {
	db, err := s.open(path, false)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, stmt := range snapshotSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	meta := map[string]string{
		"format_version": strconv.Itoa(SnapshotVersion),
		"created_at":     snap.CreatedAt.UTC().Format(time.RFC3339Nano),
		"watermark":      strconv.FormatUint(snap.Watermark, 10),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta: %w", err)
		}
	}

	docStmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO documents (id, channel_id, item_id, title, fingerprint, media_kind, size_bytes, created_at, tombstoned, aliases)
		VALUES (:id, :channel_id, :item_id, :title, :fingerprint, :media_kind, :size_bytes, :created_at, :tombstoned, :aliases)`)
	if err != nil {
		return fmt.Errorf("prepare documents insert: %w", err)
	}
	defer docStmt.Close()

	for _, d := range snap.Documents {
		if err := ctx.Err(); err != nil {
			return err
		}
		aliases, err := json.Marshal(d.AliasRefs)
		if err != nil {
			return fmt.Errorf("encode aliases of %d: %w", d.ID, err)
		}
		if d.AliasRefs == nil {
			aliases = []byte("[]")
		}
		row := documentRow{
			ID:          int64(d.ID),
			ChannelID:   d.SourceRef.ChannelID,
			ItemID:      d.SourceRef.ItemID,
			Title:       d.Title,
			Fingerprint: d.Fingerprint.String(),
			MediaKind:   string(d.MediaKind),
			SizeBytes:   d.SizeBytes,
			CreatedAt:   d.CreatedAt.UnixNano(),
			Tombstoned:  d.Tombstoned,
			Aliases:     string(aliases),
		}
		if _, err := docStmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("insert document %d: %w", d.ID, err)
		}
	}

	fpStmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO fingerprints (fingerprint, doc_id) VALUES (:fingerprint, :doc_id)`)
	if err != nil {
		return fmt.Errorf("prepare fingerprints insert: %w", err)
	}
	defer fpStmt.Close()

	for fp, id := range snap.Fingerprints {
		if _, err := fpStmt.ExecContext(ctx, fingerprintRow{Fingerprint: fp.String(), DocID: int64(id)}); err != nil {
			return fmt.Errorf("insert fingerprint: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load reads the snapshot. Returns ErrNoSnapshot when there is none.
func (s *SnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	if !s.Exists() {
		return nil, ErrNoSnapshot
	}

	db, err := s.open(s.path, true)
	if err != nil {
		return nil, sferrors.New(sferrors.ErrCodeSnapshotFailed, "open snapshot", err)
	}
	defer db.Close()

	var integrity string
	if err := db.GetContext(ctx, &integrity, "PRAGMA integrity_check"); err != nil {
		return nil, sferrors.New(sferrors.ErrCodeSnapshotFailed, "snapshot integrity check", err)
	}
	if integrity != "ok" {
		return nil, sferrors.Newf(sferrors.ErrCodeSnapshotFailed, "snapshot corrupted: %s", integrity)
	}

	var metaRows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := db.SelectContext(ctx, &metaRows, `SELECT key, value FROM meta`); err != nil {
		return nil, sferrors.New(sferrors.ErrCodeSnapshotFailed, "read snapshot meta", err)
	}
	meta := make(map[string]string, len(metaRows))
	for _, r := range metaRows {
		meta[r.Key] = r.Value
	}

	snap := &Snapshot{Fingerprints: make(map[Fingerprint]DocID)}
	snap.Version, err = strconv.Atoi(meta["format_version"])
	if err != nil {
		return nil, sferrors.Newf(sferrors.ErrCodeSnapshotVersion, "snapshot has no readable format version")
	}
	if snap.Version > SnapshotVersion {
		return nil, sferrors.Newf(sferrors.ErrCodeSnapshotVersion,
			"snapshot format %d is newer than supported format %d", snap.Version, SnapshotVersion).
			WithSuggestion("upgrade shadowfinder or delete the snapshot and re-ingest")
	}
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, meta["created_at"])
	snap.Watermark, _ = strconv.ParseUint(meta["watermark"], 10, 64)

	var rows []documentRow
	if err := db.SelectContext(ctx, &rows, `SELECT * FROM documents ORDER BY id`); err != nil {
		return nil, sferrors.New(sferrors.ErrCodeSnapshotFailed, "read snapshot documents", err)
	}
	snap.Documents = make([]*Document, 0, len(rows))
	for _, r := range rows {
		d, err := r.document()
		if err != nil {
			return nil, sferrors.New(sferrors.ErrCodeSnapshotFailed, "decode snapshot document", err)
		}
		snap.Documents = append(snap.Documents, d)
	}

	var fps []fingerprintRow
	if err := db.SelectContext(ctx, &fps, `SELECT fingerprint, doc_id FROM fingerprints`); err != nil {
		return nil, sferrors.New(sferrors.ErrCodeSnapshotFailed, "read snapshot fingerprints", err)
	}
	for _, r := range fps {
		fp, err := ParseFingerprint(r.Fingerprint)
		if err != nil {
			return nil, sferrors.New(sferrors.ErrCodeSnapshotFailed, "decode snapshot fingerprint", err)
		}
		snap.Fingerprints[fp] = DocID(r.DocID)
	}

	return snap, nil
}

func (r documentRow) document() (*Document, error) {
	fp, err := ParseFingerprint(r.Fingerprint)
	if err != nil {
		return nil, err
	}
	var aliases []SourceRef
	if err := json.Unmarshal([]byte(r.Aliases), &aliases); err != nil {
		return nil, fmt.Errorf("aliases of %d: %w", r.ID, err)
	}
	return &Document{
		ID:          DocID(r.ID),
		SourceRef:   SourceRef{ChannelID: r.ChannelID, ItemID: r.ItemID},
		Title:       r.Title,
		Fingerprint: fp,
		MediaKind:   MediaKind(r.MediaKind),
		SizeBytes:   r.SizeBytes,
		CreatedAt:   time.Unix(0, r.CreatedAt).UTC(),
		AliasRefs:   aliases,
		Tombstoned:  r.Tombstoned,
	}, nil
}

// Capture builds a snapshot of the view. fingerprints is copied.
func (v *View) Capture(fingerprints map[Fingerprint]DocID) *Snapshot {
	snap := &Snapshot{
		Version:      SnapshotVersion,
		CreatedAt:    time.Now().UTC(),
		Watermark:    v.watermark,
		Fingerprints: make(map[Fingerprint]DocID, len(fingerprints)),
	}
	v.ForEachDocument(func(d *Document) bool {
		d.TitleTokens = nil
		snap.Documents = append(snap.Documents, d)
		return true
	})
	sort.Slice(snap.Documents, func(i, j int) bool { return snap.Documents[i].ID < snap.Documents[j].ID })
	for fp, id := range fingerprints {
		snap.Fingerprints[fp] = id
	}
	return snap
}

package ledger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kbb (
	kbb_id      TEXT PRIMARY KEY,
	kbn_id      TEXT NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	content_raw TEXT NOT NULL DEFAULT '',
	op          TEXT NOT NULL,
	parent_ids  TEXT NOT NULL DEFAULT '[]',
	state       TEXT NOT NULL DEFAULT 'uncomputed',
	message     TEXT NOT NULL DEFAULT '',
	conflict    TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	computed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_kbb_family ON kbb(kbn_id, created_at);

CREATE TABLE IF NOT EXISTS kbd (
	kbd_id     TEXT PRIMARY KEY,
	kbb_ids    TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS kbd_log (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	kbd_id      TEXT NOT NULL REFERENCES kbd(kbd_id),
	operation   TEXT NOT NULL,
	snapshot    TEXT NOT NULL DEFAULT '[]',
	tms         DATETIME NOT NULL,
	parents_kbd TEXT NOT NULL DEFAULT '[]',
	kbb         TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_kbd_log_doc ON kbd_log(kbd_id, seq);

CREATE TABLE IF NOT EXISTS ingest_files (
	path     TEXT PRIMARY KEY,
	kbb_id   TEXT NOT NULL,
	checksum TEXT NOT NULL
);
`

// DB is the SQLite-backed Ledger.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Pass ":memory:" for an ephemeral database.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) PutBlock(b *models.Block) error {
	parentsJSON, _ := json.Marshal(b.ParentIDs)

	var computedAt any
	if b.Computed() {
		computedAt = b.ComputedAt
	}

	_, err := db.conn.Exec(`
		INSERT INTO kbb (kbb_id, kbn_id, content, content_raw, op, parent_ids,
		                 state, message, conflict, created_at, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kbb_id) DO UPDATE SET
			content     = excluded.content,
			content_raw = excluded.content_raw,
			state       = excluded.state,
			message     = excluded.message,
			conflict    = excluded.conflict,
			computed_at = excluded.computed_at
	`, b.ID, b.FamilyID, b.Content, b.ContentRaw, string(b.Op), string(parentsJSON),
		string(b.State), b.Message, b.Conflict, b.CreatedAt, computedAt)
	if err != nil {
		return fmt.Errorf("ledger: put block: %w", err)
	}
	return nil
}

const blockColumns = `kbb_id, kbn_id, content, content_raw, op, parent_ids,
	state, message, conflict, created_at, computed_at`

func (db *DB) GetBlock(id string) (*models.Block, error) {
	row := db.conn.QueryRow(`SELECT `+blockColumns+` FROM kbb WHERE kbb_id = ?`, id)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger: block %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get block: %w", err)
	}
	return b, nil
}

func (db *DB) FamilyBlocks(familyID string) ([]*models.Block, error) {
	rows, err := db.conn.Query(
		`SELECT `+blockColumns+` FROM kbb WHERE kbn_id = ? ORDER BY created_at ASC, kbb_id ASC`,
		familyID)
	if err != nil {
		return nil, fmt.Errorf("ledger: family blocks: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Block, 0)
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan family block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlock(s scanner) (*models.Block, error) {
	var (
		b           models.Block
		op, state   string
		parentsJSON string
		computedAt  sql.NullTime
	)
	err := s.Scan(&b.ID, &b.FamilyID, &b.Content, &b.ContentRaw, &op, &parentsJSON,
		&state, &b.Message, &b.Conflict, &b.CreatedAt, &computedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(parentsJSON), &b.ParentIDs); err != nil {
		return nil, fmt.Errorf("parent ids: %w", err)
	}
	b.Op = models.OpKind(op)
	b.State = models.State(state)
	if computedAt.Valid {
		b.ComputedAt = computedAt.Time
	}
	return &b, nil
}

func (db *DB) CreateDocument(d *models.Document) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	idsJSON, _ := json.Marshal(d.BlockIDs)
	if _, err := tx.Exec(`INSERT INTO kbd (kbd_id, kbb_ids, created_at) VALUES (?, ?, ?)`,
		d.ID, string(idsJSON), d.CreatedAt); err != nil {
		return fmt.Errorf("ledger: insert document: %w", err)
	}
	for _, entry := range d.Log {
		if err := insertLogEntry(tx, d.ID, entry); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (db *DB) GetDocument(id string) (*models.Document, error) {
	var (
		d       models.Document
		idsJSON string
	)
	err := db.conn.QueryRow(`SELECT kbd_id, kbb_ids, created_at FROM kbd WHERE kbd_id = ?`, id).
		Scan(&d.ID, &idsJSON, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger: document %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get document: %w", err)
	}
	if err := json.Unmarshal([]byte(idsJSON), &d.BlockIDs); err != nil {
		return nil, fmt.Errorf("ledger: block ids: %w", err)
	}

	rows, err := db.conn.Query(
		`SELECT operation, snapshot, tms, parents_kbd, kbb FROM kbd_log WHERE kbd_id = ? ORDER BY seq ASC`,
		id)
	if err != nil {
		return nil, fmt.Errorf("ledger: document log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry                      models.LogEntry
			snapJSON, parJSON, kbbJSON string
		)
		if err := rows.Scan(&entry.Operation, &snapJSON, &entry.TMS, &parJSON, &kbbJSON); err != nil {
			return nil, fmt.Errorf("ledger: scan log entry: %w", err)
		}
		if err := json.Unmarshal([]byte(snapJSON), &entry.Snapshot); err != nil {
			return nil, fmt.Errorf("ledger: log snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(parJSON), &entry.ParentDocs); err != nil {
			return nil, fmt.Errorf("ledger: log parents: %w", err)
		}
		if err := json.Unmarshal([]byte(kbbJSON), &entry.BlockIDs); err != nil {
			return nil, fmt.Errorf("ledger: log blocks: %w", err)
		}
		d.Log = append(d.Log, entry)
	}
	return &d, rows.Err()
}

func (db *DB) UpdateDocument(d *models.Document, entry models.LogEntry) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	idsJSON, _ := json.Marshal(d.BlockIDs)
	res, err := tx.Exec(`UPDATE kbd SET kbb_ids = ? WHERE kbd_id = ?`, string(idsJSON), d.ID)
	if err != nil {
		return fmt.Errorf("ledger: update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ledger: document %s: %w", d.ID, apperr.ErrNotFound)
	}
	if err := insertLogEntry(tx, d.ID, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func insertLogEntry(tx *sql.Tx, docID string, entry models.LogEntry) error {
	snapJSON, _ := json.Marshal(nonNil(entry.Snapshot))
	parJSON, _ := json.Marshal(nonNil(entry.ParentDocs))
	kbbJSON, _ := json.Marshal(nonNil(entry.BlockIDs))
	_, err := tx.Exec(`
		INSERT INTO kbd_log (kbd_id, operation, snapshot, tms, parents_kbd, kbb)
		VALUES (?, ?, ?, ?, ?, ?)
	`, docID, entry.Operation, string(snapJSON), entry.TMS, string(parJSON), string(kbbJSON))
	if err != nil {
		return fmt.Errorf("ledger: insert log entry: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (db *DB) IngestState() (map[string]IngestRecord, error) {
	rows, err := db.conn.Query(`SELECT path, kbb_id, checksum FROM ingest_files`)
	if err != nil {
		return nil, fmt.Errorf("ledger: ingest state: %w", err)
	}
	defer rows.Close()

	out := make(map[string]IngestRecord)
	for rows.Next() {
		var (
			path string
			rec  IngestRecord
		)
		if err := rows.Scan(&path, &rec.BlockID, &rec.Checksum); err != nil {
			return nil, err
		}
		out[path] = rec
	}
	return out, rows.Err()
}

func (db *DB) SetIngestRecord(path string, rec IngestRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO ingest_files (path, kbb_id, checksum) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			kbb_id   = excluded.kbb_id,
			checksum = excluded.checksum
	`, path, rec.BlockID, rec.Checksum)
	if err != nil {
		return fmt.Errorf("ledger: set ingest record: %w", err)
	}
	return nil
}

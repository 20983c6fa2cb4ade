package outreach

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable RecordStore. A single database file holds
// every contact record; the schema is created on open.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the record database. Pass
// ":memory:" for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contact_records (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		creditor_name TEXT NOT NULL,
		reference_code TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		parent_thread_id TEXT NOT NULL DEFAULT '',
		sub_thread_id TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		original_amount REAL NOT NULL DEFAULT 0,
		extracted_amount REAL,
		final_amount REAL NOT NULL DEFAULT 0,
		amount_source TEXT NOT NULL DEFAULT '',
		response_text TEXT NOT NULL DEFAULT '',
		confidence REAL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		message_sent_at TIMESTAMP,
		response_received_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_client ON contact_records(client_id);
	CREATE INDEX IF NOT EXISTS idx_records_state ON contact_records(state);
	CREATE INDEX IF NOT EXISTS idx_records_reference ON contact_records(client_id, reference_code);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("outreach: record id is empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contact_records (
			id, client_id, creditor_name, reference_code, email,
			parent_thread_id, sub_thread_id, state,
			original_amount, extracted_amount, final_amount, amount_source,
			response_text, confidence, last_error,
			created_at, message_sent_at, response_received_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			client_id=excluded.client_id,
			creditor_name=excluded.creditor_name,
			reference_code=excluded.reference_code,
			email=excluded.email,
			parent_thread_id=excluded.parent_thread_id,
			sub_thread_id=excluded.sub_thread_id,
			state=excluded.state,
			original_amount=excluded.original_amount,
			extracted_amount=excluded.extracted_amount,
			final_amount=excluded.final_amount,
			amount_source=excluded.amount_source,
			response_text=excluded.response_text,
			confidence=excluded.confidence,
			last_error=excluded.last_error,
			created_at=excluded.created_at,
			message_sent_at=excluded.message_sent_at,
			response_received_at=excluded.response_received_at,
			updated_at=excluded.updated_at`,
		rec.ID, rec.ClientID, rec.CreditorName, rec.ReferenceCode, rec.Email,
		rec.ParentThreadID, rec.SubThreadID, string(rec.State),
		rec.OriginalAmount, rec.ExtractedAmount, rec.FinalAmount, string(rec.AmountSource),
		rec.ResponseText, rec.Confidence, rec.LastError,
		rec.CreatedAt, rec.MessageSentAt, rec.ResponseReceivedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting record %s: %w", rec.ID, err)
	}
	return nil
}

const recordColumns = `id, client_id, creditor_name, reference_code, email,
	parent_thread_id, sub_thread_id, state,
	original_amount, extracted_amount, final_amount, amount_source,
	response_text, confidence, last_error,
	created_at, message_sent_at, response_received_at, updated_at`

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM contact_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

func (s *SQLiteStore) ListByClient(ctx context.Context, clientID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM contact_records WHERE client_id = ? ORDER BY created_at`, clientID)
	if err != nil {
		return nil, fmt.Errorf("listing records for %s: %w", clientID, err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *SQLiteStore) ListStaleMessageSent(ctx context.Context, cutoff time.Time) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM contact_records
		 WHERE state = ? AND message_sent_at IS NOT NULL AND message_sent_at < ?
		 ORDER BY created_at`, string(StateMessageSent), cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing stale records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *SQLiteStore) FindByReference(ctx context.Context, clientID, referenceCode string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM contact_records
		 WHERE client_id = ? AND reference_code <> '' AND lower(reference_code) = lower(?)
		 LIMIT 1`, clientID, referenceCode)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var state, source string
	err := row.Scan(
		&rec.ID, &rec.ClientID, &rec.CreditorName, &rec.ReferenceCode, &rec.Email,
		&rec.ParentThreadID, &rec.SubThreadID, &state,
		&rec.OriginalAmount, &rec.ExtractedAmount, &rec.FinalAmount, &source,
		&rec.ResponseText, &rec.Confidence, &rec.LastError,
		&rec.CreatedAt, &rec.MessageSentAt, &rec.ResponseReceivedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.State = State(state)
	rec.AmountSource = AmountSource(source)
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

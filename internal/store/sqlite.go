package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/farm-ledger/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS farms (
	farm_id      TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	doc_id              TEXT PRIMARY KEY,
	file_name           TEXT NOT NULL,
	file_path           TEXT NOT NULL,
	raw_text_hash       TEXT NOT NULL,
	raw_text            TEXT NOT NULL,
	content_fingerprint TEXT NOT NULL,
	failed              INTEGER NOT NULL DEFAULT 0,
	extracted_at        DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_fingerprint
	ON documents(content_fingerprint) WHERE failed = 0;

CREATE TABLE IF NOT EXISTS transactions (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id               TEXT NOT NULL,
	farm_id              TEXT,
	farm_name            TEXT,
	vendor_key           TEXT,
	vendor_name          TEXT,
	invoice_number       TEXT,
	invoice_date         TEXT,
	due_date             TEXT,
	service_address      TEXT,
	account_number       TEXT,
	total_cents          INTEGER,
	status               TEXT NOT NULL,
	parse_status         TEXT,
	parse_failure_reason TEXT,
	duplicate_detected   INTEGER NOT NULL DEFAULT 0,
	duplicate_reason     TEXT,
	duplicate_of         TEXT,
	confidence           REAL,
	needs_manual_review  INTEGER NOT NULL DEFAULT 0,
	manual_override      INTEGER NOT NULL DEFAULT 0,
	invoice_key          TEXT,
	content_fingerprint  TEXT,
	failure_reason       TEXT,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_transactions_invoice_key
	ON transactions(invoice_key) WHERE duplicate_detected = 0 AND invoice_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_doc_id ON transactions(doc_id);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
CREATE INDEX IF NOT EXISTS idx_transactions_farm_id ON transactions(farm_id);
CREATE INDEX IF NOT EXISTS idx_transactions_parse_status ON transactions(parse_status);

CREATE TABLE IF NOT EXISTS tagging_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id        TEXT NOT NULL,
	stage         TEXT NOT NULL,
	confidence    REAL NOT NULL,
	top_candidate TEXT,
	candidates    TEXT NOT NULL,
	reason        TEXT NOT NULL,
	features      TEXT,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tagging_events_doc_id ON tagging_events(doc_id);

CREATE TABLE IF NOT EXISTS manual_review_queue (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id                 TEXT NOT NULL UNIQUE,
	file_name              TEXT NOT NULL,
	extracted_text_preview TEXT NOT NULL,
	candidates             TEXT NOT NULL,
	confidence             REAL NOT NULL,
	reason                 TEXT NOT NULL,
	status                 TEXT NOT NULL DEFAULT 'open',
	created_at             DATETIME NOT NULL,
	resolved_at            DATETIME
);

CREATE TABLE IF NOT EXISTS manual_review_decisions (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id              TEXT NOT NULL,
	content_fingerprint TEXT NOT NULL,
	invoice_key         TEXT,
	selected_farm_id    TEXT NOT NULL,
	selected_farm_name  TEXT NOT NULL,
	decision_source     TEXT NOT NULL,
	notes               TEXT,
	created_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transaction_line_items (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id       TEXT NOT NULL,
	line_number  INTEGER NOT NULL,
	description  TEXT NOT NULL,
	amount_cents INTEGER,
	UNIQUE (doc_id, line_number)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Documents

func (s *SQLiteStore) InsertDocument(ctx context.Context, doc *model.Document) error {
	if doc.ExtractedAt.IsZero() {
		doc.ExtractedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (doc_id, file_name, file_path, raw_text_hash, raw_text, content_fingerprint, extracted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.DocID, doc.FileName, doc.FilePath, doc.RawTextHash, doc.RawText, doc.ContentFingerprint, doc.ExtractedAt,
	)
	if isSQLiteUnique(err, "documents.content_fingerprint") {
		return ErrDuplicateFingerprint
	}
	return eris.Wrapf(err, "sqlite: insert document %s", doc.DocID)
}

func (s *SQLiteStore) MarkDocumentFailed(ctx context.Context, docID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET failed = 1 WHERE doc_id = ?`, docID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark document failed %s", docID)
	}
	return checkRowsAffected(res, "document", docID)
}

func (s *SQLiteStore) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_id = ?`, docID)
	return scanDocument(row)
}

func (s *SQLiteStore) FindDocumentByFingerprint(ctx context.Context, fingerprint string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_fingerprint = ? AND failed = 0`,
		fingerprint,
	)
	return scanDocument(row)
}

func (s *SQLiteStore) ActiveFingerprints(ctx context.Context) (map[string]string, error) {
	return s.stringPairs(ctx,
		`SELECT content_fingerprint, doc_id FROM documents WHERE failed = 0`,
		"fingerprints")
}

// Transactions

func (s *SQLiteStore) InsertTransaction(ctx context.Context, tx *model.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionInsertColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		transactionArgs(tx)...,
	)
	if isSQLiteUnique(err, "transactions.invoice_key") {
		return ErrDuplicateInvoiceKey
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert transaction for %s", tx.DocID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: last insert id")
	}
	tx.ID = id
	return nil
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

func (s *SQLiteStore) GetTransactionByDocID(ctx context.Context, docID string) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE doc_id = ? ORDER BY id DESC LIMIT 1`,
		docID,
	)
	return scanTransaction(row)
}

func (s *SQLiteStore) FindByInvoiceKey(ctx context.Context, invoiceKey string) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE invoice_key = ? AND duplicate_detected = 0`,
		invoiceKey,
	)
	return scanTransaction(row)
}

func (s *SQLiteStore) InvoiceKeys(ctx context.Context) (map[string]string, error) {
	return s.stringPairs(ctx,
		`SELECT invoice_key, doc_id FROM transactions WHERE duplicate_detected = 0 AND invoice_key IS NOT NULL`,
		"invoice keys")
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any

	if filter.FarmID != "" {
		query += ` AND farm_id = ?`
		args = append(args, filter.FarmID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ParseFailed {
		query += ` AND (parse_status IS NULL OR parse_status != 'success')`
	}
	query += ` ORDER BY (invoice_date IS NULL) ASC, invoice_date DESC, id DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	return s.queryTransactions(ctx, query, args...)
}

func (s *SQLiteStore) AssignFarm(ctx context.Context, id int64, farmID, farmName string, vendorKey *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions
		 SET farm_id = ?, farm_name = ?, vendor_key = COALESCE(?, vendor_key),
		     status = ?, manual_override = 1, needs_manual_review = 0, updated_at = ?
		 WHERE id = ?`,
		farmID, farmName, vendorKey, string(model.StatusManual), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: assign farm to transaction %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AttributionHistory(ctx context.Context) ([]model.Transaction, error) {
	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE duplicate_detected = 0 AND status IN ('auto', 'manual') AND farm_id IS NOT NULL
		   AND vendor_key IS NOT NULL AND account_number IS NOT NULL`)
}

// Audit trail

func (s *SQLiteStore) InsertTaggingEvent(ctx context.Context, ev *model.TaggingEvent) error {
	top, candidates, features, err := marshalTaggingEvent(ev)
	if err != nil {
		return err
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tagging_events (doc_id, stage, confidence, top_candidate, candidates, reason, features, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.DocID, ev.Stage, ev.Confidence, top, candidates, ev.Reason, features, ev.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert tagging event for %s", ev.DocID)
}

func (s *SQLiteStore) ListTaggingEvents(ctx context.Context, docID string) ([]model.TaggingEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, stage, confidence, top_candidate, candidates, reason, features, created_at
		 FROM tagging_events WHERE doc_id = ? ORDER BY id`,
		docID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tagging events")
	}
	defer rows.Close()

	var events []model.TaggingEvent
	for rows.Next() {
		var ev model.TaggingEvent
		var top, features sql.NullString
		var candidates string
		if err := rows.Scan(&ev.DocID, &ev.Stage, &ev.Confidence, &top, &candidates, &ev.Reason, &features, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tagging event")
		}
		if err := unmarshalTaggingEvent(&ev, []byte(top.String), []byte(candidates), []byte(features.String)); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list tagging events iterate")
}

func (s *SQLiteStore) EnqueueReview(ctx context.Context, item *model.ReviewQueueItem) error {
	candidates, err := json.Marshal(nonNilCandidates(item.Candidates))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal review candidates")
	}
	if item.Status == "" {
		item.Status = model.ReviewOpen
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO manual_review_queue (doc_id, file_name, extracted_text_preview, candidates, confidence, reason, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (doc_id) DO UPDATE SET
		   extracted_text_preview = excluded.extracted_text_preview, candidates = excluded.candidates,
		   confidence = excluded.confidence, reason = excluded.reason, status = excluded.status`,
		item.DocID, item.FileName, item.ExtractedTextPreview, string(candidates), item.Confidence, item.Reason, item.Status, item.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: enqueue review %s", item.DocID)
	}
	if id, err := res.LastInsertId(); err == nil {
		item.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListReviewQueue(ctx context.Context, status string) ([]model.ReviewQueueItem, error) {
	query := `SELECT id, doc_id, file_name, extracted_text_preview, candidates, confidence, reason, status, created_at
	          FROM manual_review_queue`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list review queue")
	}
	defer rows.Close()

	var items []model.ReviewQueueItem
	for rows.Next() {
		var it model.ReviewQueueItem
		var candidates string
		if err := rows.Scan(&it.ID, &it.DocID, &it.FileName, &it.ExtractedTextPreview, &candidates,
			&it.Confidence, &it.Reason, &it.Status, &it.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review item")
		}
		if err := json.Unmarshal([]byte(candidates), &it.Candidates); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal review candidates")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list review queue iterate")
}

func (s *SQLiteStore) ResolveReview(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE manual_review_queue SET status = ?, resolved_at = ? WHERE doc_id = ?`,
		model.ReviewResolved, time.Now().UTC(), docID,
	)
	return eris.Wrapf(err, "sqlite: resolve review %s", docID)
}

func (s *SQLiteStore) InsertDecision(ctx context.Context, d *model.ReviewDecision) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO manual_review_decisions
		 (doc_id, content_fingerprint, invoice_key, selected_farm_id, selected_farm_name, decision_source, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DocID, d.ContentFingerprint, d.InvoiceKey, d.SelectedFarmID, d.SelectedFarmName, d.DecisionSource, d.Notes, d.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert decision for %s", d.DocID)
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, docID string) ([]model.ReviewDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, content_fingerprint, invoice_key, selected_farm_id, selected_farm_name, decision_source, notes, created_at
		 FROM manual_review_decisions WHERE doc_id = ? ORDER BY id`,
		docID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close()

	var out []model.ReviewDecision
	for rows.Next() {
		var d model.ReviewDecision
		if err := rows.Scan(&d.DocID, &d.ContentFingerprint, &d.InvoiceKey, &d.SelectedFarmID,
			&d.SelectedFarmName, &d.DecisionSource, &d.Notes, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

func (s *SQLiteStore) InsertLineItems(ctx context.Context, items []model.StoredLineItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin line items")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transaction_line_items (doc_id, line_number, description, amount_cents) VALUES (?, ?, ?, ?)
		 ON CONFLICT (doc_id, line_number) DO UPDATE SET description = excluded.description, amount_cents = excluded.amount_cents`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare line items")
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.DocID, it.LineNumber, it.Description, it.AmountCents); err != nil {
			return eris.Wrapf(err, "sqlite: insert line item %s#%d", it.DocID, it.LineNumber)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit line items")
}

func (s *SQLiteStore) ListLineItems(ctx context.Context, docID string) ([]model.StoredLineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, line_number, description, amount_cents FROM transaction_line_items
		 WHERE doc_id = ? ORDER BY line_number`,
		docID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list line items")
	}
	defer rows.Close()

	var out []model.StoredLineItem
	for rows.Next() {
		var it model.StoredLineItem
		if err := rows.Scan(&it.DocID, &it.LineNumber, &it.Description, &it.AmountCents); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan line item")
		}
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list line items iterate")
}

// Farms and projections

func (s *SQLiteStore) SeedFarms(ctx context.Context, farms []model.Farm) error {
	now := time.Now().UTC()
	for _, f := range farms {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO farms (farm_id, display_name, created_at, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (farm_id) DO UPDATE SET display_name = excluded.display_name, updated_at = excluded.updated_at`,
			f.ID, f.DisplayName(), now, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: seed farm %s", f.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListFarms(ctx context.Context) ([]FarmRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT farm_id, display_name FROM farms ORDER BY display_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list farms")
	}
	defer rows.Close()

	var out []FarmRef
	for rows.Next() {
		var f FarmRef
		if err := rows.Scan(&f.FarmID, &f.DisplayName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan farm")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list farms iterate")
}

func (s *SQLiteStore) Summary(ctx context.Context) (*LedgerSummary, error) {
	var sum LedgerSummary
	err := s.db.QueryRowContext(ctx, summaryQuery).Scan(
		&sum.ConfirmedCents, &sum.PendingManualCents, &sum.ConfirmedCount,
		&sum.PendingManualCount, &sum.ParseFailureCount,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summary")
	}
	return &sum, nil
}

func (s *SQLiteStore) FarmTotals(ctx context.Context) ([]FarmTotal, error) {
	rows, err := s.db.QueryContext(ctx, farmTotalsQuery)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: farm totals")
	}
	defer rows.Close()

	var out []FarmTotal
	for rows.Next() {
		var ft FarmTotal
		if err := rows.Scan(&ft.FarmID, &ft.FarmName, &ft.TotalCents, &ft.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan farm total")
		}
		out = append(out, ft)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: farm totals iterate")
}

func (s *SQLiteStore) ParseFailures(ctx context.Context) ([]ParseFailureGroup, error) {
	rows, err := s.db.QueryContext(ctx, parseFailuresQuery)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse failures")
	}
	defer rows.Close()

	var out []ParseFailureGroup
	for rows.Next() {
		var g ParseFailureGroup
		if err := rows.Scan(&g.ParseStatus, &g.Reason, &g.Count, &g.SampleDocID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parse failure")
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: parse failures iterate")
}

// helpers

func (s *SQLiteStore) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query transactions")
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query transactions iterate")
}

func (s *SQLiteStore) stringPairs(ctx context.Context, query, what string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load %s", what)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", what)
		}
		out[k] = v
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: load %s iterate", what)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func isSQLiteUnique(err error, column string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDocument(row scannable) (*model.Document, error) {
	var d model.Document
	err := row.Scan(&d.DocID, &d.FileName, &d.FilePath, &d.RawTextHash, &d.RawText, &d.ContentFingerprint, &d.ExtractedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan document")
	}
	return &d, nil
}

func scanTransaction(row scannable) (*model.Transaction, error) {
	var tx model.Transaction
	err := row.Scan(transactionDest(&tx)...)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan transaction")
	}
	return &tx, nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/farm-ledger/internal/db"
	"github.com/sells-group/farm-ledger/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection for the writes
// every ingested document performs.
var preparedStatements = map[string]string{
	"insert_document":      `INSERT INTO documents (doc_id, file_name, file_path, raw_text_hash, raw_text, content_fingerprint, extracted_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"insert_tagging_event": `INSERT INTO tagging_events (doc_id, stage, confidence, top_candidate, candidates, reason, features, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"find_by_invoice_key":  `SELECT ` + transactionColumns + ` FROM transactions WHERE invoice_key = $1 AND NOT duplicate_detected`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(5)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS farms (
	farm_id      TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	doc_id              TEXT PRIMARY KEY,
	file_name           TEXT NOT NULL,
	file_path           TEXT NOT NULL,
	raw_text_hash       TEXT NOT NULL,
	raw_text            TEXT NOT NULL,
	content_fingerprint TEXT NOT NULL,
	failed              BOOLEAN NOT NULL DEFAULT false,
	extracted_at        TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_fingerprint
	ON documents(content_fingerprint) WHERE NOT failed;

CREATE TABLE IF NOT EXISTS transactions (
	id                   BIGSERIAL PRIMARY KEY,
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
	total_cents          BIGINT,
	status               TEXT NOT NULL,
	parse_status         TEXT,
	parse_failure_reason TEXT,
	duplicate_detected   BOOLEAN NOT NULL DEFAULT false,
	duplicate_reason     TEXT,
	duplicate_of         TEXT,
	confidence           DOUBLE PRECISION,
	needs_manual_review  BOOLEAN NOT NULL DEFAULT false,
	manual_override      BOOLEAN NOT NULL DEFAULT false,
	invoice_key          TEXT,
	content_fingerprint  TEXT,
	failure_reason       TEXT,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_transactions_invoice_key
	ON transactions(invoice_key) WHERE NOT duplicate_detected AND invoice_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_doc_id ON transactions(doc_id);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
CREATE INDEX IF NOT EXISTS idx_transactions_farm_id ON transactions(farm_id);
CREATE INDEX IF NOT EXISTS idx_transactions_parse_status ON transactions(parse_status);

CREATE TABLE IF NOT EXISTS tagging_events (
	id            BIGSERIAL PRIMARY KEY,
	doc_id        TEXT NOT NULL,
	stage         TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	top_candidate JSONB,
	candidates    JSONB NOT NULL,
	reason        TEXT NOT NULL,
	features      JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tagging_events_doc_id ON tagging_events(doc_id);

CREATE TABLE IF NOT EXISTS manual_review_queue (
	id                     BIGSERIAL PRIMARY KEY,
	doc_id                 TEXT NOT NULL UNIQUE,
	file_name              TEXT NOT NULL,
	extracted_text_preview TEXT NOT NULL,
	candidates             JSONB NOT NULL,
	confidence             DOUBLE PRECISION NOT NULL,
	reason                 TEXT NOT NULL,
	status                 TEXT NOT NULL DEFAULT 'open',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at            TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS manual_review_decisions (
	id                  BIGSERIAL PRIMARY KEY,
	doc_id              TEXT NOT NULL,
	content_fingerprint TEXT NOT NULL,
	invoice_key         TEXT,
	selected_farm_id    TEXT NOT NULL,
	selected_farm_name  TEXT NOT NULL,
	decision_source     TEXT NOT NULL,
	notes               TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_review_decisions_doc_id ON manual_review_decisions(doc_id);

CREATE TABLE IF NOT EXISTS transaction_line_items (
	id           BIGSERIAL PRIMARY KEY,
	doc_id       TEXT NOT NULL,
	line_number  INTEGER NOT NULL,
	description  TEXT NOT NULL,
	amount_cents BIGINT,
	UNIQUE (doc_id, line_number)
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Documents

func (s *PostgresStore) InsertDocument(ctx context.Context, doc *model.Document) error {
	if doc.ExtractedAt.IsZero() {
		doc.ExtractedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (doc_id, file_name, file_path, raw_text_hash, raw_text, content_fingerprint, extracted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.DocID, doc.FileName, doc.FilePath, doc.RawTextHash, doc.RawText, doc.ContentFingerprint, doc.ExtractedAt,
	)
	if isPgUnique(err, "uq_documents_fingerprint") {
		return ErrDuplicateFingerprint
	}
	return eris.Wrapf(err, "postgres: insert document %s", doc.DocID)
}

func (s *PostgresStore) MarkDocumentFailed(ctx context.Context, docID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE documents SET failed = true WHERE doc_id = $1`, docID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark document failed %s", docID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "document %s", docID)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	return s.scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE doc_id = $1`, docID))
}

func (s *PostgresStore) FindDocumentByFingerprint(ctx context.Context, fingerprint string) (*model.Document, error) {
	return s.scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_fingerprint = $1 AND NOT failed`, fingerprint))
}

func (s *PostgresStore) ActiveFingerprints(ctx context.Context) (map[string]string, error) {
	return s.stringPairs(ctx,
		`SELECT content_fingerprint, doc_id FROM documents WHERE NOT failed`, "fingerprints")
}

// Transactions

func (s *PostgresStore) InsertTransaction(ctx context.Context, tx *model.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO transactions (`+transactionInsertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
		 RETURNING id`,
		transactionArgs(tx)...,
	).Scan(&tx.ID)
	if isPgUnique(err, "uq_transactions_invoice_key") {
		return ErrDuplicateInvoiceKey
	}
	return eris.Wrapf(err, "postgres: insert transaction for %s", tx.DocID)
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	return s.scanTransaction(s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (s *PostgresStore) GetTransactionByDocID(ctx context.Context, docID string) (*model.Transaction, error) {
	return s.scanTransaction(s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE doc_id = $1 ORDER BY id DESC LIMIT 1`, docID))
}

func (s *PostgresStore) FindByInvoiceKey(ctx context.Context, invoiceKey string) (*model.Transaction, error) {
	return s.scanTransaction(s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE invoice_key = $1 AND NOT duplicate_detected`, invoiceKey))
}

func (s *PostgresStore) InvoiceKeys(ctx context.Context) (map[string]string, error) {
	return s.stringPairs(ctx,
		`SELECT invoice_key, doc_id FROM transactions WHERE NOT duplicate_detected AND invoice_key IS NOT NULL`,
		"invoice keys")
}

func (s *PostgresStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.FarmID != "" {
		query += fmt.Sprintf(` AND farm_id = $%d`, argIdx)
		args = append(args, filter.FarmID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.ParseFailed {
		query += ` AND (parse_status IS NULL OR parse_status != 'success')`
	}
	query += fmt.Sprintf(` ORDER BY invoice_date DESC NULLS LAST, id DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	return s.queryTransactions(ctx, query, args...)
}

func (s *PostgresStore) AssignFarm(ctx context.Context, id int64, farmID, farmName string, vendorKey *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions
		 SET farm_id = $1, farm_name = $2, vendor_key = COALESCE($3, vendor_key),
		     status = $4, manual_override = true, needs_manual_review = false, updated_at = now()
		 WHERE id = $5`,
		farmID, farmName, vendorKey, string(model.StatusManual), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: assign farm to transaction %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AttributionHistory(ctx context.Context) ([]model.Transaction, error) {
	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE NOT duplicate_detected AND status IN ('auto', 'manual') AND farm_id IS NOT NULL
		   AND vendor_key IS NOT NULL AND account_number IS NOT NULL`)
}

// Audit trail

func (s *PostgresStore) InsertTaggingEvent(ctx context.Context, ev *model.TaggingEvent) error {
	top, candidates, features, err := marshalTaggingEvent(ev)
	if err != nil {
		return err
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tagging_events (doc_id, stage, confidence, top_candidate, candidates, reason, features, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.DocID, ev.Stage, ev.Confidence, top, candidates, ev.Reason, features, ev.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert tagging event for %s", ev.DocID)
}

func (s *PostgresStore) ListTaggingEvents(ctx context.Context, docID string) ([]model.TaggingEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc_id, stage, confidence, top_candidate, candidates, reason, features, created_at
		 FROM tagging_events WHERE doc_id = $1 ORDER BY id`,
		docID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tagging events")
	}
	defer rows.Close()

	var events []model.TaggingEvent
	for rows.Next() {
		var ev model.TaggingEvent
		var top, candidates, features []byte
		if err := rows.Scan(&ev.DocID, &ev.Stage, &ev.Confidence, &top, &candidates, &ev.Reason, &features, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tagging event")
		}
		if err := unmarshalTaggingEvent(&ev, top, candidates, features); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list tagging events iterate")
}

func (s *PostgresStore) EnqueueReview(ctx context.Context, item *model.ReviewQueueItem) error {
	candidates, err := json.Marshal(nonNilCandidates(item.Candidates))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal review candidates")
	}
	if item.Status == "" {
		item.Status = model.ReviewOpen
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO manual_review_queue (doc_id, file_name, extracted_text_preview, candidates, confidence, reason, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (doc_id) DO UPDATE SET
		   extracted_text_preview = $3, candidates = $4, confidence = $5, reason = $6, status = $7
		 RETURNING id`,
		item.DocID, item.FileName, item.ExtractedTextPreview, candidates, item.Confidence, item.Reason, item.Status, item.CreatedAt,
	).Scan(&item.ID)
	return eris.Wrapf(err, "postgres: enqueue review %s", item.DocID)
}

func (s *PostgresStore) ListReviewQueue(ctx context.Context, status string) ([]model.ReviewQueueItem, error) {
	query := `SELECT id, doc_id, file_name, extracted_text_preview, candidates, confidence, reason, status, created_at
	          FROM manual_review_queue`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list review queue")
	}
	defer rows.Close()

	var items []model.ReviewQueueItem
	for rows.Next() {
		var it model.ReviewQueueItem
		var candidates []byte
		if err := rows.Scan(&it.ID, &it.DocID, &it.FileName, &it.ExtractedTextPreview, &candidates,
			&it.Confidence, &it.Reason, &it.Status, &it.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review item")
		}
		if err := json.Unmarshal(candidates, &it.Candidates); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal review candidates")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list review queue iterate")
}

func (s *PostgresStore) ResolveReview(ctx context.Context, docID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE manual_review_queue SET status = $1, resolved_at = now() WHERE doc_id = $2`,
		model.ReviewResolved, docID,
	)
	return eris.Wrapf(err, "postgres: resolve review %s", docID)
}

func (s *PostgresStore) InsertDecision(ctx context.Context, d *model.ReviewDecision) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO manual_review_decisions
		 (doc_id, content_fingerprint, invoice_key, selected_farm_id, selected_farm_name, decision_source, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.DocID, d.ContentFingerprint, d.InvoiceKey, d.SelectedFarmID, d.SelectedFarmName, d.DecisionSource, d.Notes, d.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert decision for %s", d.DocID)
}

func (s *PostgresStore) ListDecisions(ctx context.Context, docID string) ([]model.ReviewDecision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc_id, content_fingerprint, invoice_key, selected_farm_id, selected_farm_name, decision_source, notes, created_at
		 FROM manual_review_decisions WHERE doc_id = $1 ORDER BY id`,
		docID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var out []model.ReviewDecision
	for rows.Next() {
		var d model.ReviewDecision
		if err := rows.Scan(&d.DocID, &d.ContentFingerprint, &d.InvoiceKey, &d.SelectedFarmID,
			&d.SelectedFarmName, &d.DecisionSource, &d.Notes, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

// InsertLineItems replaces the document's line items using COPY.
func (s *PostgresStore) InsertLineItems(ctx context.Context, items []model.StoredLineItem) error {
	if len(items) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM transaction_line_items WHERE doc_id = $1`, items[0].DocID); err != nil {
		return eris.Wrapf(err, "postgres: clear line items for %s", items[0].DocID)
	}

	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = []any{it.DocID, it.LineNumber, it.Description, it.AmountCents}
	}
	_, err := db.CopyRows(ctx, s.pool, "transaction_line_items",
		[]string{"doc_id", "line_number", "description", "amount_cents"}, rows)
	return eris.Wrap(err, "postgres: insert line items")
}

func (s *PostgresStore) ListLineItems(ctx context.Context, docID string) ([]model.StoredLineItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc_id, line_number, description, amount_cents FROM transaction_line_items
		 WHERE doc_id = $1 ORDER BY line_number`,
		docID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list line items")
	}
	defer rows.Close()

	var out []model.StoredLineItem
	for rows.Next() {
		var it model.StoredLineItem
		if err := rows.Scan(&it.DocID, &it.LineNumber, &it.Description, &it.AmountCents); err != nil {
			return nil, eris.Wrap(err, "postgres: scan line item")
		}
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list line items iterate")
}

// Farms and projections

func (s *PostgresStore) SeedFarms(ctx context.Context, farms []model.Farm) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(farms))
	for _, f := range farms {
		rows = append(rows, []any{f.ID, f.DisplayName(), now})
	}
	_, err := db.Upsert(ctx, s.pool, db.UpsertConfig{
		Table:        "farms",
		Columns:      []string{"farm_id", "display_name", "updated_at"},
		ConflictKeys: []string{"farm_id"},
	}, rows)
	return eris.Wrap(err, "postgres: seed farms")
}

func (s *PostgresStore) ListFarms(ctx context.Context) ([]FarmRef, error) {
	rows, err := s.pool.Query(ctx, `SELECT farm_id, display_name FROM farms ORDER BY display_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list farms")
	}
	defer rows.Close()

	var out []FarmRef
	for rows.Next() {
		var f FarmRef
		if err := rows.Scan(&f.FarmID, &f.DisplayName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan farm")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list farms iterate")
}

func (s *PostgresStore) Summary(ctx context.Context) (*LedgerSummary, error) {
	var sum LedgerSummary
	err := s.pool.QueryRow(ctx, summaryQuery).Scan(
		&sum.ConfirmedCents, &sum.PendingManualCents, &sum.ConfirmedCount,
		&sum.PendingManualCount, &sum.ParseFailureCount,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summary")
	}
	return &sum, nil
}

func (s *PostgresStore) FarmTotals(ctx context.Context) ([]FarmTotal, error) {
	rows, err := s.pool.Query(ctx, farmTotalsQuery)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: farm totals")
	}
	defer rows.Close()

	var out []FarmTotal
	for rows.Next() {
		var ft FarmTotal
		if err := rows.Scan(&ft.FarmID, &ft.FarmName, &ft.TotalCents, &ft.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan farm total")
		}
		out = append(out, ft)
	}
	return out, eris.Wrap(rows.Err(), "postgres: farm totals iterate")
}

func (s *PostgresStore) ParseFailures(ctx context.Context) ([]ParseFailureGroup, error) {
	rows, err := s.pool.Query(ctx, parseFailuresQuery)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse failures")
	}
	defer rows.Close()

	var out []ParseFailureGroup
	for rows.Next() {
		var g ParseFailureGroup
		if err := rows.Scan(&g.ParseStatus, &g.Reason, &g.Count, &g.SampleDocID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan parse failure")
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "postgres: parse failures iterate")
}

// helpers

func (s *PostgresStore) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query transactions")
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		if err := rows.Scan(transactionDest(&tx)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transaction")
		}
		out = append(out, tx)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query transactions iterate")
}

func (s *PostgresStore) stringPairs(ctx context.Context, query, what string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load %s", what)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", what)
		}
		out[k] = v
	}
	return out, eris.Wrapf(rows.Err(), "postgres: load %s iterate", what)
}

func (s *PostgresStore) scanDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	err := row.Scan(&d.DocID, &d.FileName, &d.FilePath, &d.RawTextHash, &d.RawText, &d.ContentFingerprint, &d.ExtractedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan document")
	}
	return &d, nil
}

func (s *PostgresStore) scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var tx model.Transaction
	err := row.Scan(transactionDest(&tx)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan transaction")
	}
	return &tx, nil
}

func isPgUnique(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/farm-ledger/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS farms`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertDocument_DuplicateFingerprint(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO documents`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_documents_fingerprint"})

	err := s.InsertDocument(context.Background(), testDoc("d2", "fp1"))
	assert.ErrorIs(t, err, ErrDuplicateFingerprint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertDocument_OtherError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO documents`).
		WillReturnError(errors.New("connection reset"))

	err := s.InsertDocument(context.Background(), testDoc("d1", "fp1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateFingerprint)
	assert.Contains(t, err.Error(), "insert document d1")
}

func TestPostgresStore_MarkDocumentFailed_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE documents SET failed = true WHERE doc_id = \$1`).
		WithArgs("nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, s.MarkDocumentFailed(context.Background(), "nope"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertTransaction_ReturnsID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)INSERT INTO transactions .* RETURNING id`).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(7)))

	tx := testTx("d1", model.StatusAuto, "north", 100)
	require.NoError(t, s.InsertTransaction(context.Background(), tx))
	assert.Equal(t, int64(7), tx.ID)
	assert.False(t, tx.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertTransaction_DuplicateKey(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO transactions`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_transactions_invoice_key"})

	err := s.InsertTransaction(context.Background(), testTx("d2", model.StatusAuto, "north", 100))
	assert.ErrorIs(t, err, ErrDuplicateInvoiceKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTransaction_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT id, doc_id, .* FROM transactions WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetTransaction(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AssignFarm_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE transactions`).
		WithArgs("south", "South Farm", pgxmock.AnyArg(), string(model.StatusManual), int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.AssignFarm(context.Background(), 99, "south", "South Farm", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InvoiceKeys(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT invoice_key, doc_id FROM transactions WHERE NOT duplicate_detected`).
		WillReturnRows(mock.NewRows([]string{"invoice_key", "doc_id"}).
			AddRow("k1", "d1").
			AddRow("k2", "d2"))

	keys, err := s.InvoiceKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k1": "d1", "k2": "d2"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertLineItems(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM transaction_line_items WHERE doc_id = \$1`).
		WithArgs("d1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"transaction_line_items"},
		[]string{"doc_id", "line_number", "description", "amount_cents"}).
		WillReturnResult(2)

	err := s.InsertLineItems(context.Background(), []model.StoredLineItem{
		{DocID: "d1", LineNumber: 1, Description: "Energy", AmountCents: int64Ptr(12000)},
		{DocID: "d1", LineNumber: 2, Description: "Delivery"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertLineItems_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.InsertLineItems(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SeedFarms(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "farms" \("farm_id", "display_name", "updated_at"\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := s.SeedFarms(context.Background(), []model.Farm{{ID: "north", Name: "North Farm"}, {ID: "south"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Summary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT`).
		WillReturnRows(mock.NewRows([]string{"confirmed", "pending", "confirmed_count", "pending_count", "parse_failures"}).
			AddRow(int64(4500), int64(700), 3, 1, 2))

	sum, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &LedgerSummary{
		ConfirmedCents:     4500,
		PendingManualCents: 700,
		ConfirmedCount:     3,
		PendingManualCount: 1,
		ParseFailureCount:  2,
	}, sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FarmTotals(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM transactions t\s+LEFT JOIN farms f`).
		WillReturnRows(mock.NewRows([]string{"farm_id", "farm_name", "total_cents", "count"}).
			AddRow("south", "South Farm", int64(3000), 1).
			AddRow("north", "North Farm", int64(1500), 2))

	totals, err := s.FarmTotals(context.Background())
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "south", totals[0].FarmID)
	assert.Equal(t, int64(1500), totals[1].TotalCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	closed := false
	s := &PostgresStore{closeFn: func() { closed = true }}
	require.NoError(t, s.Close())
	assert.True(t, closed)
}

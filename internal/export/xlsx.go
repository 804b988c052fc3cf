// Package export writes the ledger to an XLSX workbook.
package export

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/store"
)

// Sheet names in the workbook.
const (
	SheetTransactions  = "Transactions"
	SheetFarmTotals    = "Farm Totals"
	SheetParseFailures = "Parse Failures"
)

const moneyFormat = "#,##0.00"

// maxRows bounds the transactions sheet.
const maxRows = 1_000_000

var transactionHeader = []string{
	"ID", "Doc ID", "Farm ID", "Farm", "Vendor", "Invoice #", "Invoice Date",
	"Due Date", "Account #", "Service Address", "Total", "Status", "Confidence",
	"Parse Status", "Duplicate Of", "Invoice Key", "Created At",
}

// Options narrows what is exported.
type Options struct {
	FarmID string
	Status model.TransactionStatus
}

// Workbook builds the ledger workbook from st.
func Workbook(ctx context.Context, st store.Store, opts Options) (*xlsx.File, error) {
	txs, err := st.ListTransactions(ctx, store.TransactionFilter{
		FarmID: opts.FarmID,
		Status: opts.Status,
		Limit:  maxRows,
	})
	if err != nil {
		return nil, eris.Wrap(err, "export: list transactions")
	}
	totals, err := st.FarmTotals(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "export: farm totals")
	}
	failures, err := st.ParseFailures(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "export: parse failures")
	}

	f := xlsx.NewFile()
	if err := transactionsSheet(f, txs); err != nil {
		return nil, err
	}
	if err := totalsSheet(f, totals); err != nil {
		return nil, err
	}
	if err := failuresSheet(f, failures); err != nil {
		return nil, err
	}

	zap.L().Debug("export: workbook built",
		zap.Int("transactions", len(txs)),
		zap.Int("farms", len(totals)),
		zap.Int("failure_groups", len(failures)),
	)
	return f, nil
}

// WriteFile exports the ledger to path.
func WriteFile(ctx context.Context, st store.Store, opts Options, path string) error {
	f, err := Workbook(ctx, st, opts)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// Write exports the ledger to w.
func Write(ctx context.Context, st store.Store, opts Options, w io.Writer) error {
	f, err := Workbook(ctx, st, opts)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

func transactionsSheet(f *xlsx.File, txs []model.Transaction) error {
	sheet, err := f.AddSheet(SheetTransactions)
	if err != nil {
		return eris.Wrap(err, "export: add transactions sheet")
	}
	headerRow(sheet, transactionHeader)

	for _, tx := range txs {
		row := sheet.AddRow()
		row.AddCell().SetInt64(tx.ID)
		for _, s := range []string{
			tx.DocID,
			model.Str(tx.FarmID),
			model.Str(tx.FarmName),
			model.Str(tx.VendorName),
			model.Str(tx.InvoiceNumber),
			model.Str(tx.InvoiceDate),
			model.Str(tx.DueDate),
			model.Str(tx.AccountNumber),
			model.Str(tx.ServiceAddress),
		} {
			row.AddCell().SetString(s)
		}
		moneyCell(row, tx.TotalCents)
		row.AddCell().SetString(string(tx.Status))
		if tx.Confidence != nil {
			row.AddCell().SetFloatWithFormat(*tx.Confidence, "0.00")
		} else {
			row.AddCell()
		}
		row.AddCell().SetString(model.Str(tx.ParseStatus))
		row.AddCell().SetString(model.Str(tx.DuplicateOf))
		row.AddCell().SetString(model.Str(tx.InvoiceKey))
		row.AddCell().SetDateTime(tx.CreatedAt)
	}
	return nil
}

func totalsSheet(f *xlsx.File, totals []store.FarmTotal) error {
	sheet, err := f.AddSheet(SheetFarmTotals)
	if err != nil {
		return eris.Wrap(err, "export: add farm totals sheet")
	}
	headerRow(sheet, []string{"Farm ID", "Farm", "Total", "Transactions"})

	var grand int64
	var count int
	for _, t := range totals {
		row := sheet.AddRow()
		row.AddCell().SetString(t.FarmID)
		row.AddCell().SetString(t.FarmName)
		cents := t.TotalCents
		moneyCell(row, &cents)
		row.AddCell().SetInt(t.Count)
		grand += t.TotalCents
		count += t.Count
	}

	row := sheet.AddRow()
	row.AddCell().SetString("TOTAL")
	row.AddCell()
	moneyCell(row, &grand)
	row.AddCell().SetInt(count)
	return nil
}

func failuresSheet(f *xlsx.File, groups []store.ParseFailureGroup) error {
	sheet, err := f.AddSheet(SheetParseFailures)
	if err != nil {
		return eris.Wrap(err, "export: add parse failures sheet")
	}
	headerRow(sheet, []string{"Parse Status", "Reason", "Count", "Sample Doc ID"})
	for _, g := range groups {
		row := sheet.AddRow()
		row.AddCell().SetString(g.ParseStatus)
		row.AddCell().SetString(g.Reason)
		row.AddCell().SetInt(g.Count)
		row.AddCell().SetString(g.SampleDocID)
	}
	return nil
}

func headerRow(sheet *xlsx.Sheet, cols []string) {
	row := sheet.AddRow()
	for _, c := range cols {
		cell := row.AddCell()
		cell.SetString(c)
		style := xlsx.NewStyle()
		style.Font.Bold = true
		style.ApplyFont = true
		cell.SetStyle(style)
	}
}

// moneyCell writes cents as a dollar amount, or an empty cell when nil.
func moneyCell(row *xlsx.Row, cents *int64) {
	cell := row.AddCell()
	if cents == nil {
		return
	}
	cell.SetFloatWithFormat(Dollars(*cents).InexactFloat64(), moneyFormat)
}

// Dollars converts integer cents to an exact decimal dollar amount.
func Dollars(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

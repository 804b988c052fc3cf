package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/atomicfile"
	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/pipeline"
	"github.com/sells-group/farm-ledger/internal/review"
	"github.com/sells-group/farm-ledger/internal/store"
)

const (
	defaultListLimit = 100
	farmDetailLimit  = 200
)

var validStatuses = map[model.TransactionStatus]bool{
	model.StatusAuto:          true,
	model.StatusManual:        true,
	model.StatusPendingManual: true,
	model.StatusDuplicate:     true,
	model.StatusFailed:        true,
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.store.Summary(r.Context())
	if err != nil {
		s.internalError(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleFarms(w http.ResponseWriter, r *http.Request) {
	farms, err := s.store.ListFarms(r.Context())
	if err != nil {
		s.internalError(w, "list farms", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"farms": orEmpty(farms)})
}

func (s *Server) handleFarmDetail(w http.ResponseWriter, r *http.Request) {
	farmID := chi.URLParam(r, "farmID")
	farms, err := s.store.ListFarms(r.Context())
	if err != nil {
		s.internalError(w, "list farms", err)
		return
	}
	var farm *store.FarmRef
	for i := range farms {
		if farms[i].FarmID == farmID {
			farm = &farms[i]
			break
		}
	}
	if farm == nil {
		writeError(w, http.StatusNotFound, "farm not found")
		return
	}

	txs, err := s.store.ListTransactions(r.Context(), store.TransactionFilter{FarmID: farmID, Limit: farmDetailLimit})
	if err != nil {
		s.internalError(w, "list farm transactions", err)
		return
	}
	var total int64
	for _, tx := range txs {
		if tx.TotalCents != nil {
			total += *tx.TotalCents
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"farm":         farm,
		"transactions": orEmpty(txs),
		"total_cents":  total,
	})
}

func (s *Server) handleFarmTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.store.FarmTotals(r.Context())
	if err != nil {
		s.internalError(w, "farm totals", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"farm_totals": orEmpty(totals)})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TransactionFilter{
		FarmID: q.Get("farm_id"),
		Status: model.TransactionStatus(q.Get("status")),
		Limit:  defaultListLimit,
	}
	if filter.Status != "" && !validStatuses[filter.Status] {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	txs, err := s.store.ListTransactions(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": orEmpty(txs), "filter": filter})
}

func (s *Server) handleTransactionDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	tx, err := s.store.GetTransaction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		s.internalError(w, "get transaction", err)
		return
	}

	items, err := s.store.ListLineItems(ctx, tx.DocID)
	if err != nil {
		s.internalError(w, "list line items", err)
		return
	}
	events, err := s.store.ListTaggingEvents(ctx, tx.DocID)
	if err != nil {
		s.internalError(w, "list tagging events", err)
		return
	}
	decisions, err := s.store.ListDecisions(ctx, tx.DocID)
	if err != nil {
		s.internalError(w, "list decisions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction":    tx,
		"line_items":     orEmpty(items),
		"tagging_events": orEmpty(events),
		"decisions":      orEmpty(decisions),
	})
}

func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.reviewer.Open(r.Context())
	if err != nil {
		s.internalError(w, "review queue", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": orEmpty(items)})
}

type resolveRequest struct {
	FarmID    string `json:"farm_id"`
	Reinforce bool   `json:"reinforce"`
	BillTo    bool   `json:"bill_to"`
	DryRun    bool   `json:"dry_run"`
	Notes     string `json:"notes"`
}

func (s *Server) handleReviewResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FarmID == "" {
		writeError(w, http.StatusBadRequest, "farm_id is required")
		return
	}

	res, err := s.reviewer.Resolve(r.Context(), review.Request{
		TxID:      id,
		FarmID:    req.FarmID,
		Reinforce: req.Reinforce,
		BillTo:    req.BillTo,
		DryRun:    req.DryRun,
		Source:    review.SourceAPI,
		Notes:     req.Notes,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, review.ErrUnknownFarm):
		writeError(w, http.StatusBadRequest, "unknown farm")
	case errors.Is(err, review.ErrMissingFingerprint):
		writeError(w, http.StatusUnprocessableEntity, "transaction has no content fingerprint")
	default:
		s.internalError(w, "resolve review", err)
	}
}

func (s *Server) handleInvoices(w http.ResponseWriter, _ *http.Request) {
	files, err := pipeline.ListPDFs(s.invoicesDir)
	if err != nil {
		s.internalError(w, "list invoices", err)
		return
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": names})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close() //nolint:errcheck

	name := header.Filename
	if !pipeline.SafeFileName(name) {
		writeError(w, http.StatusBadRequest, "invalid filename: must be a .pdf with safe characters")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if !pipeline.HasPDFHeader(data) {
		writeError(w, http.StatusBadRequest, "file is not a PDF")
		return
	}

	if err := atomicfile.Write(filepath.Join(s.invoicesDir, name), data, nil); err != nil {
		s.internalError(w, "save upload", err)
		return
	}
	zap.L().Info("server: invoice uploaded", zap.String("file", name), zap.Int("bytes", len(data)))
	writeJSON(w, http.StatusCreated, map[string]string{"file": name})
}

func (s *Server) handleProcessOne(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !pipeline.SafeFileName(req.Filename) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	path := filepath.Join(s.invoicesDir, req.Filename)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found in invoices folder")
		return
	}

	if !s.ingestMu.TryLock() {
		writeError(w, http.StatusConflict, "ingestion already running")
		return
	}
	defer s.ingestMu.Unlock()

	writeJSON(w, http.StatusOK, s.processor.ProcessFile(r.Context(), path))
}

func (s *Server) handleProcessAll(w http.ResponseWriter, r *http.Request) {
	if !s.ingestMu.TryLock() {
		writeError(w, http.StatusConflict, "ingestion already running")
		return
	}
	defer s.ingestMu.Unlock()

	summary, err := s.processor.ProcessBatch(r.Context(), s.invoicesDir)
	if err != nil {
		s.internalError(w, "process batch", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleParseFailures(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ParseFailures(r.Context())
	if err != nil {
		s.internalError(w, "parse failures", err)
		return
	}
	txs, err := s.store.ListTransactions(r.Context(), store.TransactionFilter{ParseFailed: true, Limit: farmDetailLimit})
	if err != nil {
		s.internalError(w, "parse failure transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":      orEmpty(groups),
		"transactions": orEmpty(txs),
	})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("server: "+op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Package handlers exposes the import service over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/api/middleware"
	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/store"
)

// maxMultipartMemory bounds the in-memory portion of multipart parsing; the
// per-file size cap is enforced by the import service itself.
const maxMultipartMemory = 12 << 20

// ImportsHandler handles the /api/imports endpoints.
type ImportsHandler struct {
	svc *importer.Service
	log zerolog.Logger
}

// NewImportsHandler creates the imports handler.
func NewImportsHandler(svc *importer.Service, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{svc: svc, log: log}
}

// Register wires the handler's routes onto the mux.
func (h *ImportsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/imports/statement", h.UploadStatement)
	mux.HandleFunc("POST /api/imports/screenshots", h.UploadScreenshots)
	mux.HandleFunc("POST /api/imports/email", h.EmailWebhook)
	mux.HandleFunc("GET /api/imports", h.ListJobs)
	mux.HandleFunc("GET /api/imports/{id}", h.GetJob)
	mux.HandleFunc("GET /api/imports/{id}/transactions", h.ListTransactions)
	mux.HandleFunc("PATCH /api/imports/{id}/transactions/{txId}", h.UpdateTransaction)
	mux.HandleFunc("POST /api/imports/{id}/confirm", h.Confirm)
}

// UploadStatement handles POST /api/imports/statement
func (h *ImportsHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, importer.MaxFileSize+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	job, err := h.svc.UploadStatement(ctx, userID, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		h.writeServiceError(w, err, "Failed to accept statement")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, job)
}

// UploadScreenshots handles POST /api/imports/screenshots
func (h *ImportsHandler) UploadScreenshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	files := r.MultipartForm.File["files"]
	shots := make([]importer.Screenshot, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "reading upload failed")
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, importer.MaxFileSize+1))
		f.Close()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "reading upload failed")
			return
		}
		shots = append(shots, importer.Screenshot{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	job, err := h.svc.UploadScreenshots(ctx, userID, shots)
	if err != nil {
		h.writeServiceError(w, err, "Failed to accept screenshots")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, job)
}

// EmailWebhook handles POST /api/imports/email
func (h *ImportsHandler) EmailWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.svc.ProcessEmailWebhook(ctx, userID, req.Subject, req.Body)
	if err != nil {
		h.writeServiceError(w, err, "Failed to accept email")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, job)
}

// ListJobs handles GET /api/imports
func (h *ImportsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := store.JobFilter{
		UserID: middleware.UserID(ctx),
		Status: domain.JobStatus(r.URL.Query().Get("status")),
		Source: domain.ImportSource(r.URL.Query().Get("source")),
		Limit:  50,
	}

	jobs, err := h.svc.ListJobs(ctx, filter)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list imports")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"imports": jobs,
		"count":   len(jobs),
	})
}

// GetJob handles GET /api/imports/{id}
func (h *ImportsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	job, err := h.svc.GetJob(ctx, middleware.UserID(ctx), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, "Failed to load import")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListTransactions handles GET /api/imports/{id}/transactions
func (h *ImportsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	txs, err := h.svc.ListTransactions(ctx, middleware.UserID(ctx), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, "Failed to list transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// UpdateTransaction handles PATCH /api/imports/{id}/transactions/{txId}
func (h *ImportsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Amount      *float64 `json:"amount"`
		Date        *string  `json:"date"`
		Description *string  `json:"description"`
		Merchant    *string  `json:"merchant"`
		Reject      bool     `json:"reject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	update := importer.TransactionUpdate{
		Amount:      req.Amount,
		Description: req.Description,
		Merchant:    req.Merchant,
		Reject:      req.Reject,
	}
	if req.Date != nil {
		parsed, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		update.Date = &parsed
	}

	tx, err := h.svc.UpdateTransaction(ctx, middleware.UserID(ctx), r.PathValue("txId"), update)
	if err != nil {
		h.writeServiceError(w, err, "Failed to update transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// Confirm handles POST /api/imports/{id}/confirm
func (h *ImportsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		TransactionIDs []string `json:"transaction_ids"`
		CategoryID     string   `json:"category_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.TransactionIDs) == 0 || req.CategoryID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "transaction_ids and category_id are required")
		return
	}

	result, err := h.svc.ConfirmTransactions(ctx, middleware.UserID(ctx), r.PathValue("id"), req.TransactionIDs, req.CategoryID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to confirm transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps service errors onto HTTP statuses.
func (h *ImportsHandler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrFileTooLarge):
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File exceeds the 10 MB limit")
	case errors.Is(err, domain.ErrInvalidFileType):
		middleware.WriteError(w, http.StatusUnsupportedMediaType, "Unsupported file type")
	case errors.Is(err, domain.ErrJobNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrAlreadyProcessed):
		middleware.WriteError(w, http.StatusConflict, "Transaction is no longer editable")
	case errors.Is(err, domain.ErrConfirmation):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrParseFailure):
		middleware.WriteError(w, http.StatusBadRequest, "Nothing to parse")
	default:
		h.log.Error().Err(err).Msg(fallback)
		middleware.WriteError(w, http.StatusInternalServerError, fallback)
	}
}

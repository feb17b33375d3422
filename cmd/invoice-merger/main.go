package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/invoicedocumentflow/internal/models"
	"github.com/Lllllllleong/invoicedocumentflow/internal/services"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var (
	mergerInstance *services.InvoiceMergerFunction
	once           sync.Once
	initErr        error
)

var errMissingInvoiceID = errors.New("invoiceId is required")

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// pdfcpu must not try to create its config dir on a read-only filesystem.
	api.DisableConfigDir()

	// "HandleMergeInvoice" is the entry point name we'll see in GCP.
	functions.HTTP("HandleMergeInvoice", handleMergeInvoice)
}

// main is required by the Go Functions Framework.
func main() {}

// handleMergeInvoice is the HTTP handler called by the delivery workflow.
func handleMergeInvoice(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}

	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		mergerInstance, initErr = services.NewInvoiceMerger(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Invoice merger initialization failed", "error", initErr)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "failed to initialize service"})
		return
	}

	req, err := decodeRequest(r)
	if err != nil {
		slog.Error("Could not decode request body", "error", err)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	res, err := mergerInstance.Process(r.Context(), req)
	if err != nil {
		// The specific error is already logged inside the Process method.
		writeJSON(w, statusFor(err), models.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeRequest(r *http.Request) (*models.InvoiceMergeRequest, error) {
	var req models.InvoiceMergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	if req.InvoiceID == "" {
		return nil, errMissingInvoiceID
	}
	return &req, nil
}

// statusFor maps permanent failures to 422 so that the workflow stops
// retrying them; everything else is worth another attempt.
func statusFor(err error) int {
	if services.IsPermanent(err) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

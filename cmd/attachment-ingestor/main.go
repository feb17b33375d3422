package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/invoicedocumentflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var (
	ingestorInstance *services.AttachmentIngestorFunction
	once             sync.Once
	initErr          error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	api.DisableConfigDir()

	// Register the CloudEvent function for attachment uploads.
	functions.CloudEvent("IngestAttachment", ingestAttachment)
}

// main is required by the Go Functions Framework.
func main() {}

// ingestAttachment is the Cloud Function entry point for storage finalize events.
func ingestAttachment(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		ingestorInstance, initErr = services.NewAttachmentIngestor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Returning an error marks the invocation as failed and the event is redelivered.
	return ingestorInstance.Process(ctx, gcsEvent)
}

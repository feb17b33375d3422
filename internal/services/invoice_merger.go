package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/invoicedocumentflow/internal/gcp"
	"github.com/Lllllllleong/invoicedocumentflow/internal/models"
	"github.com/Lllllllleong/invoicedocumentflow/internal/pdfmerge"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// defaultMaxSourceBytes keeps the merged mail attachment under the
	// 25 MiB limit of the mail provider.
	defaultMaxSourceBytes = 24 * 1024 * 1024
	pdfContentType        = "application/pdf"
)

var (
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrNoRenderedInvoice = errors.New("invoice has no rendered PDF")
)

// InvoiceMergerConfig holds configuration for the invoice-merger service.
type InvoiceMergerConfig struct {
	ProjectID            string
	FirestoreDatabase    string
	InvoiceCollection    string
	AttachmentCollection string
	MergedInvoiceBucket  string
	WorkflowID           string
	WorkflowLocation     string
	MaxSourceBytes       int64
	DownloadParallelism  int
	Merge                pdfmerge.Options
}

// InvoiceMergerFunction holds the dependencies for merging an invoice with
// its attachments.
type InvoiceMergerFunction struct {
	storageClient    *storage.Client
	firestoreClient  *firestore.Client
	executionsClient *executions.Client
	merger           *pdfmerge.Merger
	config           InvoiceMergerConfig
}

// loadMergerConfig loads and validates all necessary environment variables for this service.
func loadMergerConfig() (*InvoiceMergerConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	mergedBucket := gcp.GetEnv("MERGED_INVOICE_BUCKET", "")
	if mergedBucket == "" {
		return nil, fmt.Errorf("MERGED_INVOICE_BUCKET environment variable must be set")
	}

	mergeOpts := pdfmerge.DefaultOptions()
	mergeOpts.Parallelism = gcp.GetEnvInt("MERGE_PARALLELISM", 4)
	mergeOpts.Optimize = gcp.GetEnvBool("OPTIMIZE_MERGED_PDF", false)
	mergeOpts.Validate = gcp.GetEnvBool("VALIDATE_SOURCES", false)

	return &InvoiceMergerConfig{
		ProjectID:            projectID,
		FirestoreDatabase:    gcp.GetEnv("FIRESTORE_DATABASE", ""),
		InvoiceCollection:    gcp.GetEnv("INVOICE_COLLECTION", "invoices"),
		AttachmentCollection: gcp.GetEnv("ATTACHMENT_COLLECTION", "attachments"),
		MergedInvoiceBucket:  mergedBucket,
		WorkflowLocation:     gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		WorkflowID:           gcp.GetEnv("WORKFLOW_ID", "invoice-delivery"),
		MaxSourceBytes:       int64(gcp.GetEnvInt("MAX_ATTACHMENT_BYTES", defaultMaxSourceBytes)),
		DownloadParallelism:  gcp.GetEnvInt("DOWNLOAD_PARALLELISM", 10),
		Merge:                mergeOpts,
	}, nil
}

// NewInvoiceMerger creates a new InvoiceMergerFunction instance.
func NewInvoiceMerger(ctx context.Context) (*InvoiceMergerFunction, error) {
	config, err := loadMergerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID, config.FirestoreDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	f := &InvoiceMergerFunction{
		storageClient:    storageClient,
		firestoreClient:  firestoreClient,
		executionsClient: executionsClient,
		merger:           pdfmerge.New(config.Merge, slog.Default()),
		config:           *config,
	}
	slog.Info("Invoice merger logic initialized.", "workflowId", config.WorkflowID, "mergedBucket", config.MergedInvoiceBucket)
	return f, nil
}

// Process merges the rendered invoice with its accepted attachments, stores
// the result and hands it to the delivery workflow.
func (f *InvoiceMergerFunction) Process(ctx context.Context, req *models.InvoiceMergeRequest) (*models.InvoiceMergeResponse, error) {
	if req.ExecutionID == "" {
		req.ExecutionID = uuid.NewString()
	}
	logCtx := slog.With("invoiceId", req.InvoiceID, "executionId", req.ExecutionID)
	logCtx.Info("Starting invoice merge.")

	// --- 1. Load the invoice record ---
	docRef := f.firestoreClient.Collection(f.config.InvoiceCollection).Doc(req.InvoiceID)
	snap, err := docRef.Get(ctx)
	if status.Code(err) == codes.NotFound {
		logCtx.Warn("Invoice record does not exist.")
		return nil, fmt.Errorf("%s: %w", req.InvoiceID, ErrInvoiceNotFound)
	}
	if err != nil {
		logCtx.Error("Failed to load invoice record", "error", err)
		return nil, fmt.Errorf("failed to load invoice %s: %w", req.InvoiceID, err)
	}
	var invoice models.Invoice
	if err := snap.DataTo(&invoice); err != nil {
		return nil, f.handleError(ctx, logCtx, docRef, "failed to decode invoice record", err)
	}
	if invoice.MergeStatus == models.MergeDone && invoice.MergedPDFUri != "" {
		logCtx.Info("Invoice already merged. Skipping.", "mergedGcsUri", invoice.MergedPDFUri)
		return &models.InvoiceMergeResponse{
			Status:       "success",
			MergedGCSUri: invoice.MergedPDFUri,
			PageCount:    invoice.PageCount,
		}, nil
	}
	if err := gcp.UpdateStatus(ctx, docRef, "mergeStatus", models.MergeRunning, ""); err != nil {
		return nil, f.handleError(ctx, logCtx, docRef, "failed to update status to MERGING", err)
	}

	// --- 2. Collect and download the sources in order ---
	attachments, err := f.acceptedAttachments(ctx, req.InvoiceID)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, docRef, "failed to list attachments", err)
	}
	uris, err := sourceURIs(&invoice, attachments)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, docRef, "failed to collect sources", err)
	}
	sources, err := f.downloadSources(ctx, logCtx, uris)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, docRef, "failed to download sources", err)
	}

	// --- 3. Merge ---
	res, err := f.merger.MergeBytes(ctx, sources)
	if err != nil {
		var pe *pdfmerge.ParseError
		if errors.As(err, &pe) && pe.Index >= 0 && pe.Index < len(uris) {
			logCtx = logCtx.With("badSource", uris[pe.Index])
		}
		return nil, f.handleError(ctx, logCtx, docRef, "failed to merge invoice PDFs", err)
	}
	logCtx.Info("Merged invoice PDFs.", "sourceCount", len(sources), "pageCount", res.PageCount, "bytes", len(res.PDF))

	// --- 4. Store the merged invoice ---
	objectName := mergedObjectName(req.InvoiceID, res.PDF)
	bucketHandle := f.storageClient.Bucket(f.config.MergedInvoiceBucket)
	err = gcp.Retry(ctx, gcp.DefaultRetryPolicy, "save "+objectName, func(ctx context.Context) error {
		return gcp.SaveToGCSAtomically(ctx, bucketHandle, objectName, pdfContentType, res.PDF)
	})
	if err != nil {
		return nil, f.handleError(ctx, logCtx, docRef, "failed to save merged invoice", err)
	}
	mergedURI := gcp.GCSURI(f.config.MergedInvoiceBucket, objectName)

	updates := []firestore.Update{
		{Path: "mergeStatus", Value: models.MergeDone},
		{Path: "mergedPdfUri", Value: mergedURI},
		{Path: "pageCount", Value: res.PageCount},
		{Path: "workflowExecutionId", Value: req.ExecutionID},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		return nil, f.handleError(ctx, logCtx, docRef, "failed to update status to MERGED", err)
	}

	// --- 5. Hand off to delivery ---
	if err := f.triggerDelivery(ctx, logCtx, req.InvoiceID, mergedURI, res.PageCount); err != nil {
		return nil, f.handleError(ctx, logCtx, docRef, "failed to trigger delivery workflow", err)
	}

	logCtx.Info("Invoice merge complete.", "mergedGcsUri", mergedURI)
	return &models.InvoiceMergeResponse{
		Status:       "success",
		MergedGCSUri: mergedURI,
		PageCount:    res.PageCount,
		SourceCount:  len(sources),
	}, nil
}

// acceptedAttachments returns the invoice's accepted attachments in upload order.
func (f *InvoiceMergerFunction) acceptedAttachments(ctx context.Context, invoiceID string) ([]models.Attachment, error) {
	it := f.firestoreClient.Collection(f.config.AttachmentCollection).
		Where("invoiceId", "==", invoiceID).
		Where("status", "==", models.AttachmentAccepted).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer it.Stop()

	var attachments []models.Attachment
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query attachments: %w", err)
		}
		var a models.Attachment
		if err := snap.DataTo(&a); err != nil {
			return nil, fmt.Errorf("failed to decode attachment %s: %w", snap.Ref.ID, err)
		}
		attachments = append(attachments, a)
	}
	return attachments, nil
}

// downloadSources fetches every source concurrently, keeping their order.
func (f *InvoiceMergerFunction) downloadSources(ctx context.Context, logCtx *slog.Logger, uris []string) ([][]byte, error) {
	logCtx.Info("Starting concurrent download of sources.", "sourceCount", len(uris))
	sources := make([][]byte, len(uris))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(f.config.DownloadParallelism, 1))

	for i, uri := range uris {
		eg.Go(func() error {
			bucket, object, err := gcp.ParseGCSURI(uri)
			if err != nil {
				return fmt.Errorf("source %d: %w", i, err)
			}
			data, err := gcp.ReadObject(gctx, f.storageClient.Bucket(bucket), object, f.config.MaxSourceBytes)
			if err != nil {
				return fmt.Errorf("source %d: %w", i, err)
			}
			sources[i] = data
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

func (f *InvoiceMergerFunction) triggerDelivery(ctx context.Context, logCtx *slog.Logger, invoiceID, mergedURI string, pageCount int) error {
	if f.config.WorkflowID == "" {
		logCtx.Info("No delivery workflow configured. Skipping hand-off.")
		return nil
	}
	logCtx.Info("Triggering delivery workflow.")
	target := gcp.WorkflowTarget{
		ProjectID: f.config.ProjectID,
		Location:  f.config.WorkflowLocation,
		Workflow:  f.config.WorkflowID,
	}
	name, err := gcp.StartWorkflow(ctx, f.executionsClient, target, models.InvoiceDeliveryArgs{
		InvoiceID:    invoiceID,
		MergedGCSUri: mergedURI,
		PageCount:    pageCount,
	})
	if err != nil {
		return err
	}
	logCtx.Info("Delivery workflow started.", "execution", name)
	return nil
}

func (f *InvoiceMergerFunction) handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr, "permanent", IsPermanent(originalErr))
	if err := gcp.UpdateStatus(ctx, docRef, "mergeStatus", models.MergeFailed, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

// sourceURIs orders the merge input: the rendered invoice first, then the
// attachments as given.
func sourceURIs(invoice *models.Invoice, attachments []models.Attachment) ([]string, error) {
	if invoice.RenderedPDFUri == "" {
		return nil, ErrNoRenderedInvoice
	}
	uris := make([]string, 0, len(attachments)+1)
	uris = append(uris, invoice.RenderedPDFUri)
	for _, a := range attachments {
		if a.Status != models.AttachmentAccepted || a.PDFUri == "" {
			continue
		}
		uris = append(uris, a.PDFUri)
	}
	return uris, nil
}

// mergedObjectName addresses the merged PDF by its content, so an existing
// object under the name always holds exactly these bytes.
func mergedObjectName(invoiceID string, pdf []byte) string {
	return fmt.Sprintf("%s/merged-%s.pdf", invoiceID, hashBytes(pdf))
}

// IsPermanent reports whether err comes from the input itself, so that
// retrying the same request cannot succeed.
func IsPermanent(err error) bool {
	return pdfmerge.IsInputError(err) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrNoRenderedInvoice) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, gcp.ErrObjectTooLarge)
}

package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/invoicedocumentflow/internal/gcp"
	"github.com/Lllllllleong/invoicedocumentflow/internal/models"
	"github.com/Lllllllleong/invoicedocumentflow/internal/pdfmerge"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported attachment format")
	ErrInvalidUploadName = errors.New("upload name must be <invoiceId>/<filename>")
	ErrNoPages           = errors.New("attachment has no pages")
)

// AttachmentIngestorConfig holds configuration for the attachment-ingestor service.
type AttachmentIngestorConfig struct {
	ProjectID             string
	FirestoreDatabase     string
	AttachmentCollection  string
	AttachmentStoreBucket string
	MaxAttachmentBytes    int64
}

// AttachmentIngestorFunction normalizes uploaded attachments into PDFs that
// the invoice merger can consume.
type AttachmentIngestorFunction struct {
	storageClient   *storage.Client
	firestoreClient *firestore.Client
	pdfConf         *model.Configuration
	config          AttachmentIngestorConfig
}

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// NewAttachmentIngestor creates a new AttachmentIngestorFunction instance.
func NewAttachmentIngestor(ctx context.Context) (*AttachmentIngestorFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := AttachmentIngestorConfig{
		ProjectID:             projectID,
		FirestoreDatabase:     gcp.GetEnv("FIRESTORE_DATABASE", ""),
		AttachmentCollection:  gcp.GetEnv("ATTACHMENT_COLLECTION", "attachments"),
		AttachmentStoreBucket: gcp.GetEnv("ATTACHMENT_STORE_BUCKET", ""),
		MaxAttachmentBytes:    int64(gcp.GetEnvInt("MAX_ATTACHMENT_BYTES", defaultMaxSourceBytes)),
	}
	if config.AttachmentStoreBucket == "" {
		return nil, fmt.Errorf("ATTACHMENT_STORE_BUCKET environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID, config.FirestoreDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	f := &AttachmentIngestorFunction{
		storageClient:   storageClient,
		firestoreClient: firestoreClient,
		pdfConf:         pdfmerge.NewConfiguration(),
		config:          config,
	}
	slog.Info("Attachment ingestor logic initialized.", "storeBucket", config.AttachmentStoreBucket)
	return f, nil
}

// Process ingests one uploaded attachment. Files that can never be merged are
// recorded as REJECTED and acknowledged; only infrastructure failures are
// returned so that the event gets redelivered.
func (f *AttachmentIngestorFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new attachment upload.")

	invoiceID, filename, err := parseUploadName(e.Name)
	if err != nil {
		logCtx.Warn("Ignoring object outside the attachment layout.", "error", err)
		return nil
	}
	logCtx = logCtx.With("invoiceId", invoiceID)

	data, err := gcp.ReadObject(ctx, f.storageClient.Bucket(e.Bucket), e.Name, f.config.MaxAttachmentBytes)
	if errors.Is(err, gcp.ErrObjectTooLarge) {
		return f.reject(ctx, logCtx, invoiceID, filename, "", err)
	}
	if err != nil {
		logCtx.Error("Failed to download attachment", "error", err)
		return err
	}

	fileHash := hashBytes(data)
	logCtx = logCtx.With("fileHash", fileHash)

	isDuplicate, docID, err := f.isDuplicate(ctx, invoiceID, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate attachment detected. Skipping.", "existingDocId", docID)
		return nil
	}

	conf := *f.pdfConf
	pdfBytes, err := normalizeAttachment(filename, data, &conf)
	if err != nil {
		return f.reject(ctx, logCtx, invoiceID, filename, fileHash, err)
	}
	pageCount, err := countPages(pdfBytes, &conf)
	if err != nil {
		return f.reject(ctx, logCtx, invoiceID, filename, fileHash, err)
	}

	objectName := attachmentObjectName(invoiceID, fileHash)
	store := f.storageClient.Bucket(f.config.AttachmentStoreBucket)
	err = gcp.Retry(ctx, gcp.DefaultRetryPolicy, "save "+objectName, func(ctx context.Context) error {
		return gcp.SaveToGCSAtomically(ctx, store, objectName, pdfContentType, pdfBytes)
	})
	if err != nil {
		logCtx.Error("Failed to store normalized attachment", "error", err)
		return err
	}

	docRef, err := f.record(ctx, models.Attachment{
		InvoiceID:        invoiceID,
		OriginalFilename: filename,
		FileHash:         fileHash,
		PDFUri:           gcp.GCSURI(f.config.AttachmentStoreBucket, objectName),
		PageCount:        pageCount,
		Status:           models.AttachmentAccepted,
	})
	if err != nil {
		logCtx.Error("Failed to create attachment record", "error", err)
		return err
	}
	logCtx.Info("Attachment accepted.", "attachmentId", docRef.ID, "pageCount", pageCount)
	return nil
}

func (f *AttachmentIngestorFunction) isDuplicate(ctx context.Context, invoiceID, fileHash string) (bool, string, error) {
	docs, err := f.firestoreClient.Collection(f.config.AttachmentCollection).
		Where("invoiceId", "==", invoiceID).
		Where("fileHash", "==", fileHash).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return true, docs[0].Ref.ID, nil
	}
	return false, "", nil
}

func (f *AttachmentIngestorFunction) record(ctx context.Context, a models.Attachment) (*firestore.DocumentRef, error) {
	a.CreatedAt = time.Now()
	docRef, _, err := f.firestoreClient.Collection(f.config.AttachmentCollection).Add(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment record: %w", err)
	}
	return docRef, nil
}

// reject records an attachment that will never be merged. The event is
// acknowledged unless the record itself cannot be written.
func (f *AttachmentIngestorFunction) reject(ctx context.Context, logCtx *slog.Logger, invoiceID, filename, fileHash string, cause error) error {
	logCtx.Warn("Attachment rejected.", "reason", cause)
	_, err := f.record(ctx, models.Attachment{
		InvoiceID:        invoiceID,
		OriginalFilename: filename,
		FileHash:         fileHash,
		Status:           models.AttachmentRejected,
		ErrorDetails:     cause.Error(),
	})
	if err != nil {
		logCtx.Error("CRITICAL: Failed to record rejected attachment.", "error", err)
		return err
	}
	return nil
}

// parseUploadName splits "<invoiceId>/<path>" into the invoice id and the
// base name of the uploaded file.
func parseUploadName(name string) (invoiceID, filename string, err error) {
	invoiceID, rest, ok := strings.Cut(name, "/")
	if !ok || invoiceID == "" || rest == "" || strings.HasSuffix(rest, "/") {
		return "", "", fmt.Errorf("%q: %w", name, ErrInvalidUploadName)
	}
	return invoiceID, path.Base(rest), nil
}

func attachmentObjectName(invoiceID, fileHash string) string {
	return fmt.Sprintf("%s/%s.pdf", invoiceID, fileHash)
}

// normalizeAttachment returns the attachment as PDF bytes. Images become a
// single page PDF; everything else besides PDF is refused.
func normalizeAttachment(filename string, data []byte, conf *model.Configuration) ([]byte, error) {
	switch ext := strings.ToLower(path.Ext(filename)); ext {
	case ".pdf":
		return data, nil
	case ".jpg", ".jpeg", ".png", ".tif", ".tiff", ".webp":
		return imageToPDF(data, conf)
	default:
		return nil, fmt.Errorf("%q: %w", ext, ErrUnsupportedFormat)
	}
}

func imageToPDF(data []byte, conf *model.Configuration) ([]byte, error) {
	var buf bytes.Buffer
	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImages(nil, &buf, []io.Reader{bytes.NewReader(data)}, imp, conf); err != nil {
		return nil, fmt.Errorf("failed to convert image: %w: %w", ErrUnsupportedFormat, err)
	}
	return buf.Bytes(), nil
}

// countPages parses the normalized attachment the same way the merger will,
// so that anything accepted here is known to be mergeable.
func countPages(pdfBytes []byte, conf *model.Configuration) (int, error) {
	doc, err := pdfmerge.Parse(pdfBytes, conf)
	if err != nil {
		return 0, err
	}
	pages, err := doc.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, ErrNoPages
	}
	return len(pages), nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

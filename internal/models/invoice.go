package models

import "time"

// Invoice status values, as the invoicing backend stores them.
const (
	InvoiceOpen     = "OPEN"
	InvoiceAccepted = "ACCEPTED"
	InvoicePaid     = "PAID"
)

// Merge status values tracked on the invoice record.
const (
	MergePending = "PENDING"
	MergeRunning = "MERGING"
	MergeDone    = "MERGED"
	MergeFailed  = "FAILED"
)

// Attachment status values.
const (
	AttachmentAccepted = "ACCEPTED"
	AttachmentRejected = "REJECTED"
)

// Party is the other party of an invoice.
type Party struct {
	Name        string `firestore:"name,omitempty"`
	Street      string `firestore:"street,omitempty"`
	City        string `firestore:"city,omitempty"`
	Zip         string `firestore:"zip,omitempty"`
	BankAccount string `firestore:"bankAccount,omitempty"`
}

// Invoice is the Firestore record of an issued invoice. The invoicing
// backend creates it together with the rendered first page; this flow only
// fills in the merge fields.
type Invoice struct {
	Status         string    `firestore:"status,omitempty"`
	CounterParty   Party     `firestore:"counterParty,omitempty"`
	DueDate        time.Time `firestore:"dueDate,omitempty"`
	RenderedPDFUri string    `firestore:"renderedPdfUri,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt,omitempty"`

	MergeStatus         string `firestore:"mergeStatus,omitempty"`
	MergedPDFUri        string `firestore:"mergedPdfUri,omitempty"`
	PageCount           int    `firestore:"pageCount,omitempty"`
	ErrorDetails        string `firestore:"errorDetails,omitempty"`
	WorkflowExecutionID string `firestore:"workflowExecutionId,omitempty"` // For traceability
}

// Attachment is a user supplied file, stored content-addressed as a PDF in
// the attachment store.
type Attachment struct {
	InvoiceID        string    `firestore:"invoiceId,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	FileHash         string    `firestore:"fileHash,omitempty"`
	PDFUri           string    `firestore:"pdfUri,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
}

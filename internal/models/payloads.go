package models

// These structs define the JSON payloads exchanged between the delivery
// workflow and the invoice functions.

// InvoiceMergeRequest is the input for the invoice-merger function.
type InvoiceMergeRequest struct {
	InvoiceID   string `json:"invoiceId"`
	ExecutionID string `json:"executionId,omitempty"`
}

// InvoiceMergeResponse is the output of the invoice-merger function.
type InvoiceMergeResponse struct {
	Status       string `json:"status"`
	MergedGCSUri string `json:"mergedGcsUri"`
	PageCount    int    `json:"pageCount"`
	SourceCount  int    `json:"sourceCount"`
}

// InvoiceDeliveryArgs is the argument passed to the delivery workflow, which
// mails the merged invoice.
type InvoiceDeliveryArgs struct {
	InvoiceID    string `json:"invoiceId"`
	MergedGCSUri string `json:"mergedGcsUri"`
	PageCount    int    `json:"pageCount"`
}

// ErrorResponse is written for failed HTTP requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

package models

import "time"

// UploadStatus tracks a bulk PDF import job.
type UploadStatus string

const (
	UploadUploaded   UploadStatus = "uploaded"
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// RowStatus is the per-row import state of an extracted record.
type RowStatus string

const (
	RowPending  RowStatus = "pending"
	RowImported RowStatus = "imported"
	RowFailed   RowStatus = "failed"
)

// ExtractedRow is one visitor line recovered from an uploaded PDF.
type ExtractedRow struct {
	Index            int       `json:"index"`
	VisitorName      string    `json:"visitor_name"`
	VisitorID        string    `json:"visitor_id"`
	NationalID       string    `json:"national_id"`
	Phone            string    `json:"phone"`
	Purpose          string    `json:"purpose"`
	Raw              string    `json:"raw"`
	Status           RowStatus `json:"status"`
	Error            string    `json:"error,omitempty"`
	VisitorRequestID string    `json:"visitor_request_id,omitempty"`
}

// BulkUpload is an uploaded PDF and the rows extracted from it.
type BulkUpload struct {
	ID           string         `json:"id"`
	OriginalName string         `json:"original_name"`
	StoredName   string         `json:"stored_name"`
	Size         int64          `json:"size"`
	MimeType     string         `json:"mime_type"`
	UploadedBy   string         `json:"uploaded_by"`
	Status       UploadStatus   `json:"status"`
	Error        string         `json:"error,omitempty"`
	Rows         []ExtractedRow `json:"rows"`
	TotalRows    int            `json:"total_rows"`
	ImportedRows int            `json:"imported_rows"`
	FailedRows   int            `json:"failed_rows"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

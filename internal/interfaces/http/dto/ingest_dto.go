package dto

// IngestUploadRequest represents the form fields accompanying an uploaded
// feed file. The file itself arrives as the multipart "file" part.
type IngestUploadRequest struct {
	Source string `form:"source" binding:"omitempty,oneof=feed document manual"`
}

// RunListRequest represents the query parameters for listing ingestion runs
type RunListRequest struct {
	Kind     string `form:"kind" binding:"omitempty,oneof=orders distributions lot_references"`
	Source   string `form:"source" binding:"omitempty,oneof=feed document manual"`
	Status   string `form:"status" binding:"omitempty,oneof=pending processing completed failed cancelled"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

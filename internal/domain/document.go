package domain

import "time"

// Document is the normalized text extracted from a source file under one
// preprocessing configuration. The composite unique index prevents the same
// file from producing duplicate documents under the same configuration.
type Document struct {
	ID                 string    `gorm:"type:text;primaryKey" json:"id"`
	ProjectID          string    `gorm:"type:text;not null;index:idx_documents_project" json:"project_id"`
	OriginalFileID     string    `gorm:"type:text;not null;uniqueIndex:idx_documents_identity" json:"original_file_id"`
	PreprocessedFileID *string   `gorm:"type:text" json:"preprocessed_file_id,omitempty"`
	ConfigID           string    `gorm:"type:text;not null;uniqueIndex:idx_documents_identity" json:"config_id"`
	FileTaskID         *string   `gorm:"type:text;index:idx_documents_file_task" json:"file_task_id,omitempty"`
	DocumentName       string    `gorm:"type:text;not null;uniqueIndex:idx_documents_identity" json:"document_name"`
	Text               string    `gorm:"type:text;not null" json:"text"`
	Meta               JSONMap   `gorm:"type:text" json:"meta,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string {
	return "documents"
}

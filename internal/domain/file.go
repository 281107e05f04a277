package domain

import "time"

// FileCreator records whether a file was uploaded by a user or produced by
// the system (e.g. a searchable PDF written back by OCR).
type FileCreator string

const (
	FileCreatorUser   FileCreator = "user"
	FileCreatorSystem FileCreator = "system"
)

// FileStorage indicates which blob store holds the file bytes.
type FileStorage string

const (
	FileStorageLocal  FileStorage = "local"
	FileStorageRemote FileStorage = "remote"
)

// File is the metadata record for an uploaded or generated blob. The bytes
// themselves live in object storage keyed by UUID.
type File struct {
	ID          string      `gorm:"type:text;primaryKey" json:"id"`
	ProjectID   string      `gorm:"type:text;not null;index:idx_files_project" json:"project_id"`
	UUID        string      `gorm:"type:text;not null;uniqueIndex:idx_files_uuid" json:"uuid"`
	Name        string      `gorm:"type:text;not null" json:"name"`
	MimeType    string      `gorm:"type:text" json:"mime_type"`
	Size        int64       `json:"size"`
	ContentHash string      `gorm:"type:text;index:idx_files_hash" json:"content_hash"`
	Creator     FileCreator `gorm:"type:text;default:user" json:"creator"`
	Storage     FileStorage `gorm:"type:text;default:local" json:"storage"`
	Meta        JSONMap     `gorm:"type:text" json:"meta,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName returns the database table name for File.
func (File) TableName() string {
	return "files"
}

package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// TaskStatus is the state machine shared by preprocessing tasks, file tasks
// and trials. Transitions are monotone toward a terminal state; cancelled
// dominates any non-terminal state at finalization.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TableStrategy selects how spreadsheet files are turned into documents.
type TableStrategy string

const (
	StrategyFullDocument TableStrategy = "full_document"
	StrategyRowByRow     TableStrategy = "row_by_row"
)

// PreprocessingConfig is an immutable snapshot of the effective preprocessing
// options. Documents reference the configuration they were produced under.
type PreprocessingConfig struct {
	ID            string        `gorm:"type:text;primaryKey" json:"id"`
	ProjectID     string        `gorm:"type:text;not null;index:idx_preprocessing_configs_project" json:"project_id"`
	Name          string        `gorm:"type:text" json:"name"`
	Description   string        `gorm:"type:text" json:"description,omitempty"`
	PDFBackend    string        `gorm:"type:text" json:"pdf_backend"`
	OCRBackend    string        `gorm:"type:text" json:"ocr_backend"`
	UseOCR        bool          `gorm:"default:false" json:"use_ocr"`
	ForceOCR      bool          `gorm:"default:false" json:"force_ocr"`
	OCRLanguages  StringArray   `gorm:"type:text" json:"ocr_languages"`
	OCRModel      string        `gorm:"type:text" json:"ocr_model,omitempty"`
	LLMModel      string        `gorm:"type:text" json:"llm_model,omitempty"`
	TableStrategy TableStrategy `gorm:"type:text;default:full_document" json:"table_strategy"`
	TableSettings JSONMap       `gorm:"type:text" json:"table_settings,omitempty"`
	Extra         JSONMap       `gorm:"type:text" json:"extra,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TableName returns the database table name for PreprocessingConfig.
func (PreprocessingConfig) TableName() string {
	return "preprocessing_configs"
}

// TaskProgress is the typed progress record persisted on a preprocessing
// task. Known keys are fields; anything else goes to Extra.
type TaskProgress struct {
	ETASeconds     float64 `json:"eta_seconds"`
	InProgress     int     `json:"in_progress"`
	TotalFiles     int     `json:"total_files"`
	CompletedFiles int     `json:"completed_files"`
	FailedFiles    int     `json:"failed_files"`
	CancelledFiles int     `json:"cancelled_files"`
	Extra          JSONMap `json:"extra,omitempty"`
}

// Value implements the driver.Valuer interface for database serialization.
func (p TaskProgress) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (p *TaskProgress) Scan(value interface{}) error {
	if value == nil {
		*p = TaskProgress{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan TaskProgress")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, p)
}

// PreprocessingTask is one batch run that turns a set of files into
// documents. It owns one FilePreprocessingTask per input file.
type PreprocessingTask struct {
	ID               string       `gorm:"type:text;primaryKey" json:"id"`
	ProjectID        string       `gorm:"type:text;not null;index:idx_preprocessing_tasks_project" json:"project_id"`
	ConfigID         string       `gorm:"type:text;not null" json:"config_id"`
	Status           TaskStatus   `gorm:"type:text;default:pending;index:idx_preprocessing_tasks_status" json:"status"`
	TotalFiles       int          `gorm:"default:0" json:"total_files"`
	ProcessedFiles   int          `gorm:"default:0" json:"processed_files"`
	FailedFiles      int          `gorm:"default:0" json:"failed_files"`
	SkippedFiles     int          `gorm:"default:0" json:"skipped_files"`
	IsCancelled      bool         `gorm:"default:false" json:"is_cancelled"`
	RollbackOnCancel bool         `gorm:"default:false" json:"rollback_on_cancel"`
	Message          string       `gorm:"type:text" json:"message,omitempty"`
	Progress         TaskProgress `gorm:"type:text" json:"progress"`
	StartedAt        *time.Time   `json:"started_at,omitempty"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`

	FileTasks []FilePreprocessingTask `gorm:"constraint:OnDelete:CASCADE" json:"file_tasks,omitempty"`
}

// TableName returns the database table name for PreprocessingTask.
func (PreprocessingTask) TableName() string {
	return "preprocessing_tasks"
}

// FilePreprocessingTask is the per-file sub-unit of a preprocessing task.
// Documents it produced cascade on delete.
type FilePreprocessingTask struct {
	ID                  string     `gorm:"type:text;primaryKey" json:"id"`
	PreprocessingTaskID string     `gorm:"type:text;not null;index:idx_file_tasks_task" json:"preprocessing_task_id"`
	FileID              string     `gorm:"type:text;not null" json:"file_id"`
	FileName            string     `gorm:"type:text" json:"file_name"`
	Status              TaskStatus `gorm:"type:text;default:pending;index:idx_file_tasks_status" json:"status"`
	Progress            float64    `gorm:"default:0" json:"progress"`
	ErrorMessage        string     `gorm:"type:text" json:"error_message,omitempty"`
	DocumentCount       int        `gorm:"default:0" json:"document_count"`
	ProcessingTime      float64    `gorm:"default:0" json:"processing_time"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	Documents []Document `gorm:"foreignKey:FileTaskID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the database table name for FilePreprocessingTask.
func (FilePreprocessingTask) TableName() string {
	return "file_preprocessing_tasks"
}

package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// TrialMeta is the typed progress/outcome record persisted on a trial.
// Failures maps document IDs to human-readable failure reasons.
type TrialMeta struct {
	ETASeconds float64           `json:"eta_seconds"`
	DocsDone   int               `json:"docs_done"`
	Failures   map[string]string `json:"failures,omitempty"`
	Extra      JSONMap           `json:"extra,omitempty"`
}

// Value implements the driver.Valuer interface for database serialization.
func (m TrialMeta) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *TrialMeta) Scan(value interface{}) error {
	if value == nil {
		*m = TrialMeta{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan TrialMeta")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Trial is one execution of a schema+prompt+model over an ordered set of
// documents.
type Trial struct {
	ID              string      `gorm:"type:text;primaryKey" json:"id"`
	ProjectID       string      `gorm:"type:text;not null;index:idx_trials_project" json:"project_id"`
	SchemaID        string      `gorm:"type:text;not null" json:"schema_id"`
	PromptID        string      `gorm:"type:text;not null" json:"prompt_id"`
	Name            string      `gorm:"type:text" json:"name"`
	DocumentIDs     StringArray `gorm:"type:text;not null" json:"document_ids"`
	Model           string      `gorm:"type:text;not null" json:"model"`
	APIKey          string      `gorm:"type:text" json:"-"`
	BaseURL         string      `gorm:"type:text" json:"base_url,omitempty"`
	AdvancedOptions JSONMap     `gorm:"type:text" json:"advanced_options,omitempty"`
	Status          TaskStatus  `gorm:"type:text;default:pending;index:idx_trials_status" json:"status"`
	IsCancelled     bool        `gorm:"default:false" json:"is_cancelled"`
	Meta            TrialMeta   `gorm:"type:text" json:"meta"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`

	Results []TrialResult `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the database table name for Trial.
func (Trial) TableName() string {
	return "trials"
}

// TrialResult is the structured extraction for one document in one trial.
// The composite unique index is the idempotency key for extraction.
type TrialResult struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	TrialID    string    `gorm:"type:text;not null;uniqueIndex:idx_trial_results_identity" json:"trial_id"`
	DocumentID string    `gorm:"type:text;not null;uniqueIndex:idx_trial_results_identity" json:"document_id"`
	Result     JSONMap   `gorm:"type:text;not null" json:"result"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for TrialResult.
func (TrialResult) TableName() string {
	return "trial_results"
}

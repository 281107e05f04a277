package domain

import (
	"strings"
	"time"
)

// DocumentContentToken is the placeholder substituted with document text when
// composing LLM messages.
const DocumentContentToken = "{document_content}"

// Schema is a named JSON-Schema object scoped to a project.
type Schema struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	ProjectID  string    `gorm:"type:text;not null;index:idx_schemas_project" json:"project_id"`
	Name       string    `gorm:"type:text;not null" json:"name"`
	Definition JSONMap   `gorm:"type:text;not null" json:"definition"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Schema.
func (Schema) TableName() string {
	return "schemas"
}

// Prompt holds the system/user prompt pair for a trial. At least one must be
// non-empty and the document content token must appear in at least one.
type Prompt struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	ProjectID    string    `gorm:"type:text;not null;index:idx_prompts_project" json:"project_id"`
	Name         string    `gorm:"type:text" json:"name"`
	SystemPrompt string    `gorm:"type:text" json:"system_prompt,omitempty"`
	UserPrompt   string    `gorm:"type:text" json:"user_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Prompt.
func (Prompt) TableName() string {
	return "prompts"
}

// Validate checks the prompt invariants.
func (p *Prompt) Validate() error {
	if strings.TrimSpace(p.SystemPrompt) == "" && strings.TrimSpace(p.UserPrompt) == "" {
		return ErrEmptyPrompt
	}
	if !strings.Contains(p.SystemPrompt, DocumentContentToken) &&
		!strings.Contains(p.UserPrompt, DocumentContentToken) {
		return ErrMissingContentToken
	}
	return nil
}

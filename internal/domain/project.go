package domain

import "time"

// Project is the ownership root for files, documents, schemas, prompts,
// trials, ground truths and evaluations. Deleting a project cascades to
// everything it owns.
type Project struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	Name        string    `gorm:"type:text;not null;uniqueIndex:idx_projects_name" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Files        []File                 `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Documents    []Document             `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Schemas      []Schema               `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Prompts      []Prompt               `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Trials       []Trial                `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	GroundTruths []GroundTruth          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Tasks        []PreprocessingTask    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Configs      []PreprocessingConfig  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the database table name for Project.
func (Project) TableName() string {
	return "projects"
}

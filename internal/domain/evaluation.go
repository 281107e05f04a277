package domain

import "time"

// Evaluation compares one trial against one ground truth. Re-running the
// pair replaces the previous evaluation, so the pair is unique.
type Evaluation struct {
	ID                string     `gorm:"type:text;primaryKey" json:"id"`
	ProjectID         string     `gorm:"type:text;not null;index:idx_evaluations_project" json:"project_id"`
	TrialID           string     `gorm:"type:text;not null;uniqueIndex:idx_evaluations_identity" json:"trial_id"`
	GroundTruthID     string     `gorm:"type:text;not null;uniqueIndex:idx_evaluations_identity" json:"ground_truth_id"`
	Status            TaskStatus `gorm:"type:text;default:pending" json:"status"`
	Message           string     `gorm:"type:text" json:"message,omitempty"`
	OverallMetrics    JSONMap    `gorm:"type:text" json:"overall_metrics,omitempty"`
	FieldMetrics      JSONMap    `gorm:"type:text" json:"field_metrics,omitempty"`
	DocumentMetrics   JSONMap    `gorm:"type:text" json:"document_metrics,omitempty"`
	ConfusionMatrices JSONMap    `gorm:"type:text" json:"confusion_matrices,omitempty"`
	MatchedDocuments  int        `gorm:"default:0" json:"matched_documents"`
	TotalDocuments    int        `gorm:"default:0" json:"total_documents"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	Metrics []EvaluationMetric `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the database table name for Evaluation.
func (Evaluation) TableName() string {
	return "evaluations"
}

// EvaluationMetric is one field-level verdict for one document within an
// evaluation.
type EvaluationMetric struct {
	ID             string    `gorm:"type:text;primaryKey" json:"id"`
	EvaluationID   string    `gorm:"type:text;not null;index:idx_evaluation_metrics_evaluation" json:"evaluation_id"`
	DocumentID     string    `gorm:"type:text;not null" json:"document_id"`
	FieldName      string    `gorm:"type:text;not null" json:"field_name"`
	PredictedValue string    `gorm:"type:text" json:"predicted_value"`
	ExpectedValue  string    `gorm:"type:text" json:"expected_value"`
	Outcome        string    `gorm:"type:text;not null" json:"outcome"`
	Score          float64   `gorm:"default:0" json:"score"`
	Detail         string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for EvaluationMetric.
func (EvaluationMetric) TableName() string {
	return "evaluation_metrics"
}

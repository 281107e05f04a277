package domain

import "time"

// GroundTruthFormat is the file format of a ground-truth upload.
type GroundTruthFormat string

const (
	GTFormatJSON GroundTruthFormat = "json"
	GTFormatCSV  GroundTruthFormat = "csv"
	GTFormatXLSX GroundTruthFormat = "xlsx"
	GTFormatZIP  GroundTruthFormat = "zip"
)

// FieldType classifies a schema field for comparison purposes.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeNumber   FieldType = "number"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeCategory FieldType = "category"
	FieldTypeDate     FieldType = "date"
	FieldTypeArray    FieldType = "array"
	FieldTypeObject   FieldType = "object"
)

// ComparisonMethod selects how a predicted value is scored against ground
// truth.
type ComparisonMethod string

const (
	CompareExact    ComparisonMethod = "exact"
	CompareFuzzy    ComparisonMethod = "fuzzy"
	CompareNumeric  ComparisonMethod = "numeric"
	CompareBoolean  ComparisonMethod = "boolean"
	CompareCategory ComparisonMethod = "category"
	CompareDate     ComparisonMethod = "date"
)

// GroundTruth is a reference record set keyed by document identity. The
// parsed {key -> record} map is cached lazily on first evaluation.
type GroundTruth struct {
	ID           string            `gorm:"type:text;primaryKey" json:"id"`
	ProjectID    string            `gorm:"type:text;not null;index:idx_ground_truths_project" json:"project_id"`
	Name         string            `gorm:"type:text" json:"name"`
	Format       GroundTruthFormat `gorm:"type:text;not null" json:"format"`
	FileUUID     string            `gorm:"type:text;not null" json:"file_uuid"`
	IDColumnName string            `gorm:"type:text" json:"id_column_name,omitempty"`
	DataCache    JSONMap           `gorm:"type:text" json:"-"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`

	FieldMappings []FieldMapping `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the database table name for GroundTruth.
func (GroundTruth) TableName() string {
	return "ground_truths"
}

// FieldMapping declares that a schema field corresponds to a ground-truth
// path/column and how the two should be compared. Unique per
// (ground_truth_id, schema_id, schema_field).
type FieldMapping struct {
	ID               string           `gorm:"type:text;primaryKey" json:"id"`
	GroundTruthID    string           `gorm:"type:text;not null;uniqueIndex:idx_field_mappings_identity" json:"ground_truth_id"`
	SchemaID         string           `gorm:"type:text;not null;uniqueIndex:idx_field_mappings_identity" json:"schema_id"`
	SchemaField      string           `gorm:"type:text;not null;uniqueIndex:idx_field_mappings_identity" json:"schema_field"`
	GroundTruthField string           `gorm:"type:text;not null" json:"ground_truth_field"`
	FieldType        FieldType        `gorm:"type:text;default:string" json:"field_type"`
	ComparisonMethod ComparisonMethod `gorm:"type:text;default:exact" json:"comparison_method"`
	Options          JSONMap          `gorm:"type:text" json:"options,omitempty"`
	Confidence       float64          `gorm:"default:0" json:"confidence,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// TableName returns the database table name for FieldMapping.
func (FieldMapping) TableName() string {
	return "field_mappings"
}

package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/llm"
	"github.com/structex/structex/internal/logger"
	"github.com/structex/structex/internal/repository"
)

// FieldMapService suggests and manages mappings between schema fields and
// ground-truth fields.
type FieldMapService struct {
	gtRepo    *repository.GroundTruthRepository
	trialRepo *repository.TrialRepository
	gtService *GroundTruthService
	logger    *logger.Logger
}

// NewFieldMapService creates a FieldMapService.
// Parameters:
//   - gtRepo: ground truth repository.
//   - trialRepo: trial repository, used for schema lookups.
//   - gtService: ground truth service for record access.
//   - log: logger instance.
// Returns:
//   - *FieldMapService: initialized service.
func NewFieldMapService(gtRepo *repository.GroundTruthRepository, trialRepo *repository.TrialRepository, gtService *GroundTruthService, log *logger.Logger) *FieldMapService {
	return &FieldMapService{
		gtRepo:    gtRepo,
		trialRepo: trialRepo,
		gtService: gtService,
		logger:    log,
	}
}

func (s *FieldMapService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Auto-mapping scores each schema/ground-truth field pair as a weighted sum
// of name similarity and value compatibility. Pairs below the threshold are
// not suggested.
const (
	nameWeight       = 0.6
	valueWeight      = 0.4
	suggestThreshold = 0.7
	valueSampleLimit = 10
)

// AutoMap suggests a mapping for every schema field and persists the ones
// that found a ground-truth counterpart.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - groundTruthID: ground truth to map against.
//   - schemaID: schema whose fields get mapped.
// Returns:
//   - []domain.FieldMapping: persisted mappings, one per matched field.
//   - error: non-nil if the inputs cannot be loaded.
func (s *FieldMapService) AutoMap(ctx context.Context, groundTruthID, schemaID string) ([]domain.FieldMapping, error) {
	gt, err := s.gtRepo.GetByID(ctx, groundTruthID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ground truth: %w", err)
	}
	schema, err := s.trialRepo.GetSchema(ctx, schemaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	records, err := s.gtService.Records(ctx, gt)
	if err != nil {
		return nil, err
	}

	suggestions := SuggestMappings(map[string]interface{}(schema.Definition), records)

	mappings := make([]domain.FieldMapping, 0, len(suggestions))
	for _, sug := range suggestions {
		mapping := domain.FieldMapping{
			ID:               uuid.New().String(),
			GroundTruthID:    groundTruthID,
			SchemaID:         schemaID,
			SchemaField:      sug.SchemaField,
			GroundTruthField: sug.GroundTruthField,
			FieldType:        sug.FieldType,
			ComparisonMethod: sug.ComparisonMethod,
			Options:          sug.Options,
			Confidence:       sug.Confidence,
		}
		if err := s.gtRepo.UpsertMapping(ctx, &mapping); err != nil {
			return nil, fmt.Errorf("failed to store mapping for %q: %w", sug.SchemaField, err)
		}
		mappings = append(mappings, mapping)
	}

	s.log(ctx).WithFields(logger.Fields{
		"ground_truth_id": groundTruthID,
		"schema_id":       schemaID,
		"mapped":          len(mappings),
	}).Info("Auto-mapping completed")

	return mappings, nil
}

// ListMappings returns the stored mappings for a ground-truth/schema pair.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - groundTruthID: ground truth ID.
//   - schemaID: schema ID.
// Returns:
//   - []domain.FieldMapping: stored mappings.
//   - error: non-nil if the query fails.
func (s *FieldMapService) ListMappings(ctx context.Context, groundTruthID, schemaID string) ([]domain.FieldMapping, error) {
	return s.gtRepo.ListMappings(ctx, groundTruthID, schemaID)
}

// SaveMapping upserts a manual mapping. Manual mappings carry confidence 1
// and replace any auto-suggested one for the same schema field.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - mapping: mapping to persist; ID is assigned when empty.
// Returns:
//   - error: non-nil if persistence fails.
func (s *FieldMapService) SaveMapping(ctx context.Context, mapping *domain.FieldMapping) error {
	if mapping.ID == "" {
		mapping.ID = uuid.New().String()
	}
	if mapping.Confidence == 0 {
		mapping.Confidence = 1
	}
	if mapping.FieldType == "" {
		mapping.FieldType = domain.FieldTypeString
	}
	if mapping.ComparisonMethod == "" {
		mapping.ComparisonMethod = defaultMethod(mapping.FieldType)
	}
	return s.gtRepo.UpsertMapping(ctx, mapping)
}

// DeleteMapping removes a stored mapping by ID.
func (s *FieldMapService) DeleteMapping(ctx context.Context, id string) error {
	return s.gtRepo.DeleteMapping(ctx, id)
}

// Suggestion is one proposed schema-to-ground-truth field pairing.
type Suggestion struct {
	SchemaField      string
	GroundTruthField string
	FieldType        domain.FieldType
	ComparisonMethod domain.ComparisonMethod
	Options          domain.JSONMap
	Confidence       float64
}

// fieldSynonyms groups field names that commonly mean the same thing. A
// schema field matching a ground-truth field through its group scores 0.9 on
// name similarity.
var fieldSynonyms = map[string][]string{
	"id":          {"document_id", "doc_id", "file_id", "record_id"},
	"name":        {"full_name", "person_name", "customer_name"},
	"date":        {"created_date", "creation_date", "timestamp"},
	"amount":      {"total", "sum", "price", "cost"},
	"email":       {"email_address", "mail", "contact_email"},
	"phone":       {"phone_number", "telephone", "mobile", "contact_number"},
	"address":     {"street_address", "location", "addr"},
	"description": {"desc", "details", "notes", "comments"},
}

// SuggestMappings pairs every schema field with its best ground-truth field.
// Each candidate pair scores nameWeight times name similarity plus
// valueWeight times how well the sampled ground-truth values fit the schema
// field's type; the best pair at or above suggestThreshold wins. Results are
// ordered by confidence, highest first.
func SuggestMappings(schemaDef map[string]interface{}, records map[string]map[string]interface{}) []Suggestion {
	samples := sampleGroundTruthValues(records)
	fieldTypes := llm.FieldTypes(schemaDef)

	gtFields := make([]string, 0, len(samples))
	for f := range samples {
		gtFields = append(gtFields, f)
	}
	sort.Strings(gtFields)

	// Deterministic iteration order for stable suggestions
	schemaFields := make([]string, 0, len(fieldTypes))
	for f, t := range fieldTypes {
		if t == "object" {
			// Leaf fields are mapped individually
			continue
		}
		schemaFields = append(schemaFields, f)
	}
	sort.Strings(schemaFields)

	var suggestions []Suggestion
	for _, field := range schemaFields {
		ft := domain.FieldType(fieldTypes[field])

		best := ""
		bestScore := 0.0
		for _, gtField := range gtFields {
			score := nameWeight*nameSimilarity(field, gtField) +
				valueWeight*valueCompatibility(ft, samples[gtField])
			if score > bestScore {
				bestScore = score
				best = gtField
			}
		}
		if best == "" || bestScore < suggestThreshold {
			continue
		}

		method := suggestMethod(ft, samples[best])
		suggestions = append(suggestions, Suggestion{
			SchemaField:      field,
			GroundTruthField: best,
			FieldType:        ft,
			ComparisonMethod: method,
			Options:          suggestOptions(method),
			Confidence:       bestScore,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].SchemaField < suggestions[j].SchemaField
	})
	return suggestions
}

// sampleGroundTruthValues flattens every record and keeps up to
// valueSampleLimit non-absent values per field path.
func sampleGroundTruthValues(records map[string]map[string]interface{}) map[string][]interface{} {
	samples := make(map[string][]interface{})
	for _, rec := range records {
		for path, value := range Flatten(rec) {
			if _, seen := samples[path]; !seen {
				samples[path] = nil
			}
			if isNilValue(value) || len(samples[path]) >= valueSampleLimit {
				continue
			}
			samples[path] = append(samples[path], value)
		}
	}
	return samples
}

// nameSimilarity scores two field names in [0, 1]: exact normalized match,
// then matching last path segments, then the synonym groups, then the best
// of plain, partial and token-sort fuzzy ratios.
func nameSimilarity(schemaField, gtField string) float64 {
	a := normalizeFieldName(schemaField)
	b := normalizeFieldName(gtField)
	if a == b {
		return 1
	}
	if normalizeFieldName(lastSegment(schemaField)) == normalizeFieldName(lastSegment(gtField)) {
		return 0.95
	}
	if synonymous(a, b) || synonymous(b, a) {
		return 0.9
	}

	score := fuzzy.Ratio(a, b)
	if r := fuzzy.PartialRatio(a, b); r > score {
		score = r
	}
	if r := fuzzy.TokenSortRatio(a, b); r > score {
		score = r
	}
	return float64(score) / 100
}

func synonymous(key, candidate string) bool {
	for _, variant := range fieldSynonyms[key] {
		if normalizeFieldName(variant) == candidate {
			return true
		}
	}
	return false
}

// valueCompatibility scores how well sampled ground-truth values fit the
// schema field's type. No samples is neutral; strings accept almost anything.
func valueCompatibility(ft domain.FieldType, values []interface{}) float64 {
	if len(values) == 0 {
		return 0.5
	}
	switch ft {
	case domain.FieldTypeBoolean:
		return booleanRate(values)
	case domain.FieldTypeNumber:
		return numericRate(values)
	case domain.FieldTypeDate:
		return dateRate(values)
	case domain.FieldTypeCategory:
		return categoryRate(values)
	default:
		return 0.8
	}
}

var booleanLikeTokens = map[string]bool{
	"true": true, "false": true, "yes": true, "no": true, "y": true, "n": true,
	"1": true, "0": true, "t": true, "f": true, "on": true, "off": true,
}

func booleanRate(values []interface{}) float64 {
	matches := 0
	for _, v := range values {
		if booleanLikeTokens[strings.TrimSpace(strings.ToLower(asString(v)))] {
			matches++
		}
	}
	return float64(matches) / float64(len(values))
}

func numericRate(values []interface{}) float64 {
	matches := 0
	for _, v := range values {
		if _, err := toFloat(v); err == nil {
			matches++
		}
	}
	return float64(matches) / float64(len(values))
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`^\d{2}/\d{2}/\d{4}`),
	regexp.MustCompile(`^\d{2}-\d{2}-\d{4}`),
}

func dateRate(values []interface{}) float64 {
	matches := 0
	for _, v := range values {
		s := strings.TrimSpace(asString(v))
		if matchesDatePattern(s) {
			matches++
			continue
		}
		if _, err := parseDate(s); err == nil {
			matches++
		}
	}
	return float64(matches) / float64(len(values))
}

func matchesDatePattern(s string) bool {
	for _, p := range datePatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// categoryRate treats a field as categorical when at most half of the
// sampled values are distinct.
func categoryRate(values []interface{}) float64 {
	unique := make(map[string]struct{}, len(values))
	for _, v := range values {
		unique[strings.TrimSpace(asString(v))] = struct{}{}
	}
	if 2*len(unique) <= len(values) {
		return 0.9
	}
	return 0.3
}

// suggestMethod picks the comparison method for a suggested pairing. Typed
// fields map directly; categories with mostly distinct values degrade to
// exact, and long free text gets fuzzy matching.
func suggestMethod(ft domain.FieldType, values []interface{}) domain.ComparisonMethod {
	switch ft {
	case domain.FieldTypeBoolean:
		return domain.CompareBoolean
	case domain.FieldTypeNumber:
		return domain.CompareNumeric
	case domain.FieldTypeDate:
		return domain.CompareDate
	case domain.FieldTypeCategory:
		if len(values) > 0 && categoryRate(values) < 0.9 {
			return domain.CompareExact
		}
		return domain.CompareCategory
	default:
		if averageLength(values) > 20 {
			return domain.CompareFuzzy
		}
		return domain.CompareExact
	}
}

func averageLength(values []interface{}) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0
	for _, v := range values {
		total += len(asString(v))
	}
	return float64(total) / float64(len(values))
}

// suggestOptions returns the default comparison options for a method.
func suggestOptions(method domain.ComparisonMethod) domain.JSONMap {
	switch method {
	case domain.CompareFuzzy:
		return domain.JSONMap{"threshold": 85.0}
	case domain.CompareNumeric:
		return domain.JSONMap{"tolerance": 0.001, "relative": false}
	case domain.CompareExact:
		return domain.JSONMap{"case_sensitive": false}
	}
	return nil
}

// normalizeFieldName lowercases and collapses separators so "Patient ID",
// "patient-id" and "patient_id" all compare equal.
func normalizeFieldName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	replacer := strings.NewReplacer(" ", "_", "-", "_", ".", "_")
	collapsed := replacer.Replace(lower)
	for strings.Contains(collapsed, "__") {
		collapsed = strings.ReplaceAll(collapsed, "__", "_")
	}
	return strings.Trim(collapsed, "_")
}

func lastSegment(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func defaultMethod(ft domain.FieldType) domain.ComparisonMethod {
	switch ft {
	case domain.FieldTypeNumber:
		return domain.CompareNumeric
	case domain.FieldTypeBoolean:
		return domain.CompareBoolean
	case domain.FieldTypeCategory:
		return domain.CompareCategory
	case domain.FieldTypeDate:
		return domain.CompareDate
	case domain.FieldTypeString:
		return domain.CompareFuzzy
	default:
		return domain.CompareExact
	}
}

// Flatten collapses nested maps into dotted paths. Arrays and scalars stay
// as leaf values.
func Flatten(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	flattenInto(m, "", out)
	return out
}

func flattenInto(m map[string]interface{}, prefix string, out map[string]interface{}) {
	for key, value := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			flattenInto(nested, path, out)
			continue
		}
		out[path] = value
	}
}

package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"github.com/structex/structex/internal/domain"
)

// Comparison is the verdict for one field. ErrorType is empty when correct;
// otherwise it names the failure so metrics can attribute errors.
type Comparison struct {
	IsCorrect  bool
	ErrorType  string
	Confidence float64
	Detail     string
}

// Error type names emitted by the comparator.
const (
	ErrMissing        = "missing"
	ErrExtra          = "extra"
	ErrStringMismatch = "string_mismatch"
	ErrFuzzyBelow     = "fuzzy_below_threshold"
	ErrNumericDiff    = "numeric_mismatch"
	ErrBooleanDiff    = "boolean_mismatch"
	ErrCategoryDiff   = "category_mismatch"
	ErrDateDiff       = "date_mismatch"
	ErrDateParse      = "date_parse_error"
)

// Comparator scores predicted values against expected ones according to the
// field's type and comparison method. It is a pure function of its inputs.
type Comparator struct {
	FuzzyThreshold int
	NumericTol     float64
}

// NewComparator creates a Comparator. Zero values fall back to the defaults
// (85 fuzzy ratio, 0.001 numeric tolerance).
func NewComparator(fuzzyThreshold int, numericTol float64) *Comparator {
	if fuzzyThreshold == 0 {
		fuzzyThreshold = 85
	}
	if numericTol == 0 {
		numericTol = 0.001
	}
	return &Comparator{
		FuzzyThreshold: fuzzyThreshold,
		NumericTol:     numericTol,
	}
}

// Compare scores a predicted value against the ground truth. Absence is
// handled first: both absent is correct, one-sided absence is missing or
// extra. Everything else dispatches on the comparison method after coercing
// both sides to the field type.
func (c *Comparator) Compare(gtValue, predValue interface{}, fieldType domain.FieldType, method domain.ComparisonMethod, options domain.JSONMap) Comparison {
	gtNil := isNilValue(gtValue)
	predNil := isNilValue(predValue)

	switch {
	case gtNil && predNil:
		return Comparison{IsCorrect: true, Confidence: 1, Detail: "both absent"}
	case predNil:
		return Comparison{ErrorType: ErrMissing, Detail: "expected a value, prediction absent"}
	case gtNil:
		return Comparison{ErrorType: ErrExtra, Detail: "prediction present, no expected value"}
	}

	switch method {
	case domain.CompareFuzzy:
		return c.compareFuzzy(gtValue, predValue, options)
	case domain.CompareNumeric:
		return c.compareNumeric(gtValue, predValue, options)
	case domain.CompareBoolean:
		return c.compareBoolean(gtValue, predValue)
	case domain.CompareCategory:
		return c.compareCategory(gtValue, predValue, options)
	case domain.CompareDate:
		return c.compareDate(gtValue, predValue)
	default:
		return c.compareExact(gtValue, predValue, options)
	}
}

// isNilValue treats nil, empty strings and the literal strings "none",
// "null" and "nan" as absent.
func isNilValue(v interface{}) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok {
		return math.IsNaN(f)
	}
	if s, ok := v.(string); ok {
		trimmed := strings.TrimSpace(strings.ToLower(s))
		return trimmed == "" || trimmed == "none" || trimmed == "null" || trimmed == "nan"
	}
	return false
}

// asString renders a scalar for comparison. Floats holding whole numbers
// render without a trailing ".0" so 5.0 matches "5".
func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return asString(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (c *Comparator) compareExact(gtValue, predValue interface{}, options domain.JSONMap) Comparison {
	gt := strings.TrimSpace(asString(gtValue))
	pred := strings.TrimSpace(asString(predValue))
	caseSensitive := false
	if options != nil {
		if v, ok := options["case_sensitive"].(bool); ok {
			caseSensitive = v
		}
	}
	if !caseSensitive {
		gt = strings.ToLower(gt)
		pred = strings.ToLower(pred)
	}
	if gt == pred {
		return Comparison{IsCorrect: true, Confidence: 1}
	}
	return Comparison{ErrorType: ErrStringMismatch, Detail: "values differ"}
}

// compareFuzzy takes the max over plain, partial and token-sort ratios.
func (c *Comparator) compareFuzzy(gtValue, predValue interface{}, options domain.JSONMap) Comparison {
	gt := strings.ToLower(strings.TrimSpace(asString(gtValue)))
	pred := strings.ToLower(strings.TrimSpace(asString(predValue)))
	if gt == pred {
		return Comparison{IsCorrect: true, Confidence: 1}
	}

	threshold := c.FuzzyThreshold
	if options != nil {
		if v, ok := options["threshold"].(float64); ok && v > 0 {
			threshold = int(v)
		}
	}

	score := fuzzy.Ratio(gt, pred)
	if r := fuzzy.PartialRatio(gt, pred); r > score {
		score = r
	}
	if r := fuzzy.TokenSortRatio(gt, pred); r > score {
		score = r
	}

	confidence := float64(score) / 100
	if score >= threshold {
		return Comparison{
			IsCorrect:  true,
			Confidence: confidence,
			Detail:     fmt.Sprintf("fuzzy score %d", score),
		}
	}
	return Comparison{
		ErrorType:  ErrFuzzyBelow,
		Confidence: confidence,
		Detail:     fmt.Sprintf("fuzzy score %d below threshold %d", score, threshold),
	}
}

// compareNumeric accepts either an absolute or a relative difference within
// tolerance. Unparseable sides fall back to string comparison.
func (c *Comparator) compareNumeric(gtValue, predValue interface{}, options domain.JSONMap) Comparison {
	gt, gerr := toFloat(gtValue)
	pred, perr := toFloat(predValue)
	if gerr != nil || perr != nil {
		return c.compareExact(gtValue, predValue, options)
	}

	tol := c.NumericTol
	if options != nil {
		if v, ok := options["tolerance"].(float64); ok && v > 0 {
			tol = v
		}
	}

	diff := math.Abs(gt - pred)
	relDiff := diff
	if gt != 0 {
		relDiff = diff / math.Abs(gt)
	}
	confidence := 1 - math.Min(diff, 1)

	if diff <= tol || relDiff <= tol {
		return Comparison{IsCorrect: true, Confidence: confidence}
	}
	return Comparison{
		ErrorType:  ErrNumericDiff,
		Confidence: confidence,
		Detail:     fmt.Sprintf("|%g - %g| exceeds tolerance %g", gt, pred, tol),
	}
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		s := strings.TrimSpace(t)
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimPrefix(s, "$")
		s = strings.TrimSuffix(s, "%")
		return strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

var truthyTokens = map[string]bool{
	"true": true, "yes": true, "1": true, "y": true, "t": true, "on": true,
}

// toBool coerces a value to boolean. Anything outside the truthy token set
// is false.
func toBool(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	if f, ok := v.(float64); ok {
		return f != 0
	}
	return truthyTokens[strings.TrimSpace(strings.ToLower(asString(v)))]
}

func (c *Comparator) compareBoolean(gtValue, predValue interface{}) Comparison {
	if toBool(gtValue) == toBool(predValue) {
		return Comparison{IsCorrect: true, Confidence: 1}
	}
	return Comparison{ErrorType: ErrBooleanDiff, Detail: "boolean values differ"}
}

// compareCategory tries direct case-insensitive equality, then consults the
// options mappings: mappings[gt_lower] lists accepted predicted values.
func (c *Comparator) compareCategory(gtValue, predValue interface{}, options domain.JSONMap) Comparison {
	gt := strings.ToLower(strings.TrimSpace(asString(gtValue)))
	pred := strings.ToLower(strings.TrimSpace(asString(predValue)))
	if gt == pred {
		return Comparison{IsCorrect: true, Confidence: 1}
	}

	if options != nil {
		if raw, ok := options["mappings"].(map[string]interface{}); ok {
			if accepted, ok := findMapping(raw, gt); ok && acceptedContains(accepted, pred) {
				return Comparison{IsCorrect: true, Confidence: 1, Detail: "matched via category mapping"}
			}
		}
	}
	return Comparison{ErrorType: ErrCategoryDiff, Detail: "categories differ"}
}

func findMapping(mappings map[string]interface{}, gt string) (interface{}, bool) {
	for key, value := range mappings {
		if strings.ToLower(strings.TrimSpace(key)) == gt {
			return value, true
		}
	}
	return nil, false
}

func acceptedContains(accepted interface{}, pred string) bool {
	switch t := accepted.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(t)) == pred
	case []interface{}:
		for _, v := range t {
			if s, ok := v.(string); ok && strings.ToLower(strings.TrimSpace(s)) == pred {
				return true
			}
		}
	}
	return false
}

// dateLayouts are tried in order before handing off to the generic parser.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02-01-2006",
	"01-02-2006",
	"20060102",
	"02.01.2006",
}

func (c *Comparator) compareDate(gtValue, predValue interface{}) Comparison {
	gt, gerr := parseDate(asString(gtValue))
	pred, perr := parseDate(asString(predValue))
	if gerr != nil || perr != nil {
		return Comparison{ErrorType: ErrDateParse, Detail: "could not parse one or both dates"}
	}
	if gt.Year() == pred.Year() && gt.Month() == pred.Month() && gt.Day() == pred.Day() {
		return Comparison{IsCorrect: true, Confidence: 1}
	}
	return Comparison{
		ErrorType: ErrDateDiff,
		Detail:    fmt.Sprintf("dates differ: %s vs %s", gt.Format("2006-01-02"), pred.Format("2006-01-02")),
	}
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return dateparse.ParseAny(s)
}

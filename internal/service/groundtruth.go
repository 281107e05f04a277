package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/logger"
	"github.com/structex/structex/internal/repository"
	"github.com/structex/structex/internal/storage"
	"github.com/xuri/excelize/v2"
)

// GroundTruthService manages ground-truth uploads and turns their payloads
// into keyed record maps.
type GroundTruthService struct {
	gtRepo  *repository.GroundTruthRepository
	store   storage.BlobStore
	logger  *logger.Logger
	maxRows int
}

// NewGroundTruthService creates a GroundTruthService.
// Parameters:
//   - gtRepo: ground truth repository.
//   - store: blob store holding the raw uploads.
//   - log: logger instance.
// Returns:
//   - *GroundTruthService: initialized service.
func NewGroundTruthService(gtRepo *repository.GroundTruthRepository, store storage.BlobStore, log *logger.Logger) *GroundTruthService {
	return &GroundTruthService{
		gtRepo:  gtRepo,
		store:   store,
		logger:  log,
		maxRows: 10000,
	}
}

func (s *GroundTruthService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Create stores a ground-truth payload and registers it. The format is
// inferred from the file extension when not given.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - name: display name, usually the upload file name.
//   - format: payload format; empty means infer from name.
//   - idColumn: explicit identity column for tabular payloads, may be empty.
//   - data: raw payload bytes.
// Returns:
//   - *domain.GroundTruth: created record.
//   - error: non-nil if the payload cannot be parsed or stored.
func (s *GroundTruthService) Create(ctx context.Context, projectID, name string, format domain.GroundTruthFormat, idColumn string, data []byte) (*domain.GroundTruth, error) {
	if format == "" {
		var err error
		format, err = inferFormat(name)
		if err != nil {
			return nil, err
		}
	}

	// Parse eagerly so broken uploads are rejected at creation time
	records, err := s.Parse(format, data, idColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ground truth: %w", err)
	}

	key, err := s.store.Save(ctx, data, contentTypeFor(format))
	if err != nil {
		return nil, fmt.Errorf("failed to store ground truth payload: %w", err)
	}

	gt := &domain.GroundTruth{
		ID:           uuid.New().String(),
		ProjectID:    projectID,
		Name:         name,
		Format:       format,
		FileUUID:     key,
		IDColumnName: idColumn,
		DataCache:    recordsToCache(records),
	}
	if err := s.gtRepo.Create(ctx, gt); err != nil {
		return nil, err
	}

	s.log(ctx).WithFields(logger.Fields{
		"ground_truth_id": gt.ID,
		"format":          format,
		"records":         len(records),
	}).Info("Ground truth created")

	return gt, nil
}

// Get loads a ground truth by ID.
func (s *GroundTruthService) Get(ctx context.Context, id string) (*domain.GroundTruth, error) {
	return s.gtRepo.GetByID(ctx, id)
}

// List returns all ground truths in a project.
func (s *GroundTruthService) List(ctx context.Context, projectID string) ([]domain.GroundTruth, error) {
	return s.gtRepo.ListByProject(ctx, projectID)
}

// Delete removes a ground truth record and its payload.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: ground truth ID.
// Returns:
//   - error: non-nil if the delete fails.
func (s *GroundTruthService) Delete(ctx context.Context, id string) error {
	gt, err := s.gtRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gtRepo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, gt.FileUUID); err != nil {
		s.log(ctx).WithField("ground_truth_id", id).WithError(err).Warn("Failed to delete payload")
	}
	return nil
}

// Records returns the keyed record map for a ground truth, parsing and
// caching the payload on first use.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - gt: ground truth record.
// Returns:
//   - map[string]map[string]interface{}: records keyed by document identity.
//   - error: non-nil if the payload cannot be loaded or parsed.
func (s *GroundTruthService) Records(ctx context.Context, gt *domain.GroundTruth) (map[string]map[string]interface{}, error) {
	if len(gt.DataCache) > 0 {
		return cacheToRecords(gt.DataCache), nil
	}

	data, err := s.store.Load(ctx, gt.FileUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ground truth payload: %w", err)
	}
	records, err := s.Parse(gt.Format, data, gt.IDColumnName)
	if err != nil {
		return nil, err
	}

	if err := s.gtRepo.UpdateDataCache(ctx, gt.ID, recordsToCache(records)); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to persist ground truth cache")
	}
	return records, nil
}

// Parse turns a raw payload into records keyed by document identity.
// Parameters:
//   - format: payload format.
//   - data: raw payload bytes.
//   - idColumn: explicit identity column, may be empty.
// Returns:
//   - map[string]map[string]interface{}: keyed records.
//   - error: non-nil if the payload is malformed.
func (s *GroundTruthService) Parse(format domain.GroundTruthFormat, data []byte, idColumn string) (map[string]map[string]interface{}, error) {
	switch format {
	case domain.GTFormatJSON:
		return parseJSONGroundTruth(data, idColumn)
	case domain.GTFormatZIP:
		return parseZIPGroundTruth(data, idColumn)
	case domain.GTFormatCSV:
		return parseCSVGroundTruth(data, idColumn, s.maxRows)
	case domain.GTFormatXLSX:
		return parseXLSXGroundTruth(data, idColumn, s.maxRows)
	default:
		return nil, fmt.Errorf("unsupported ground truth format: %q", format)
	}
}

func inferFormat(name string) (domain.GroundTruthFormat, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return domain.GTFormatJSON, nil
	case ".csv":
		return domain.GTFormatCSV, nil
	case ".xlsx", ".xls":
		return domain.GTFormatXLSX, nil
	case ".zip":
		return domain.GTFormatZIP, nil
	default:
		return "", fmt.Errorf("cannot infer ground truth format from name %q", name)
	}
}

func contentTypeFor(format domain.GroundTruthFormat) string {
	switch format {
	case domain.GTFormatJSON:
		return "application/json"
	case domain.GTFormatCSV:
		return "text/csv"
	case domain.GTFormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case domain.GTFormatZIP:
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

// tabularIDColumns is the priority order for picking the identity column of
// tabular payloads when none is configured.
var tabularIDColumns = []string{"document_id", "doc_id", "id", "filename", "file_name"}

// jsonIDFields is the priority order for deriving a JSON record's identity.
var jsonIDFields = []string{"id", "patient_id"}

// recordKey resolves the identity of a record against a candidate column
// list, falling back to the row index when none is present.
func recordKey(record map[string]interface{}, idColumn string, candidates []string, index int) string {
	if idColumn != "" {
		candidates = append([]string{idColumn}, candidates...)
	}
	for _, col := range candidates {
		if v, ok := record[col]; ok {
			key := strings.TrimSpace(asString(v))
			if key != "" {
				return key
			}
		}
	}
	return "_index:" + strconv.Itoa(index)
}

func parseJSONGroundTruth(data []byte, idColumn string) (map[string]map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}

	records := make(map[string]map[string]interface{})
	switch trimmed[0] {
	case '[':
		var list []map[string]interface{}
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to parse JSON list: %w", err)
		}
		for i, rec := range list {
			records[recordKey(rec, idColumn, jsonIDFields, i)] = rec
		}
	case '{':
		var obj map[string]interface{}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("failed to parse JSON object: %w", err)
		}
		// A map of records looks like {key: {..}, key2: {..}}. Anything else
		// is a single record.
		allNested := len(obj) > 0
		for _, v := range obj {
			if _, ok := v.(map[string]interface{}); !ok {
				allNested = false
				break
			}
		}
		if allNested {
			// A record's own id field wins over the outer key
			for key, v := range obj {
				rec := v.(map[string]interface{})
				id := ""
				for _, field := range jsonIDFields {
					if raw, ok := rec[field]; ok {
						if s := strings.TrimSpace(asString(raw)); s != "" {
							id = s
							break
						}
					}
				}
				if id == "" {
					id = strings.TrimSpace(key)
				}
				records[id] = rec
			}
		} else {
			records[recordKey(obj, idColumn, jsonIDFields, 0)] = obj
		}
	default:
		return nil, fmt.Errorf("JSON payload must be an object or a list")
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("JSON payload holds no records")
	}
	return records, nil
}

// parseZIPGroundTruth reads an archive of per-document .json files. The file
// stem is the record key. macOS resource forks are ignored.
func parseZIPGroundTruth(data []byte, idColumn string) (map[string]map[string]interface{}, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}

	records := make(map[string]map[string]interface{})
	for _, f := range reader.File {
		base := filepath.Base(f.Name)
		if strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(base, "._") {
			continue
		}
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(base), ".json") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %q in archive: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %q in archive: %w", f.Name, err)
		}

		var rec map[string]interface{}
		if err := json.Unmarshal(content, &rec); err != nil {
			return nil, fmt.Errorf("file %q is not a JSON object: %w", f.Name, err)
		}

		// The record's own id wins; the filename stem is the fallback
		key := strings.TrimSuffix(base, filepath.Ext(base))
		for _, field := range jsonIDFields {
			if raw, ok := rec[field]; ok {
				if s := strings.TrimSpace(asString(raw)); s != "" {
					key = s
					break
				}
			}
		}
		records[key] = rec
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("zip archive holds no JSON records")
	}
	return records, nil
}

func parseCSVGroundTruth(data []byte, idColumn string, maxRows int) (map[string]map[string]interface{}, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("csv needs a header row and at least one data row")
	}
	if len(rows)-1 > maxRows {
		return nil, fmt.Errorf("csv has %d rows, limit is %d", len(rows)-1, maxRows)
	}
	return tabularRecords(rows[0], rows[1:], idColumn), nil
}

// parseXLSXGroundTruth reads every sheet of a workbook. Records with the
// same key across sheets deep-merge, so one sheet can carry demographic
// columns and another lab values for the same document.
func parseXLSXGroundTruth(data []byte, idColumn string, maxRows int) (map[string]map[string]interface{}, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	merged := make(map[string]map[string]interface{})
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if len(rows) < 2 {
			continue
		}
		if len(rows)-1 > maxRows {
			return nil, fmt.Errorf("sheet %q has %d rows, limit is %d", sheet, len(rows)-1, maxRows)
		}
		for key, rec := range tabularRecords(rows[0], rows[1:], idColumn) {
			if existing, ok := merged[key]; ok {
				deepMerge(existing, rec)
			} else {
				merged[key] = rec
			}
		}
	}

	if len(merged) == 0 {
		return nil, fmt.Errorf("workbook holds no records")
	}
	return merged, nil
}

// tabularRecords converts header+rows into keyed records. Dotted column
// names nest: "medication.dose" becomes {"medication": {"dose": ...}}.
func tabularRecords(headers []string, rows [][]string, idColumn string) map[string]map[string]interface{} {
	records := make(map[string]map[string]interface{}, len(rows))
	for i, row := range rows {
		rec := make(map[string]interface{})
		flat := make(map[string]interface{})
		empty := true
		for j, header := range headers {
			header = strings.TrimSpace(header)
			if header == "" || j >= len(row) {
				continue
			}
			val := strings.TrimSpace(row[j])
			if val == "" {
				continue
			}
			empty = false
			flat[header] = val
			setNested(rec, header, val)
		}
		if empty {
			continue
		}
		records[recordKey(flat, idColumn, tabularIDColumns, i)] = rec
	}
	return records
}

// setNested writes a value under a dotted path, creating intermediate maps.
func setNested(rec map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := rec
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// deepMerge folds src into dst, recursing into shared nested maps. Non-map
// collisions keep the value already in dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, sv := range src {
		if dv, ok := dst[key]; ok {
			dm, dok := dv.(map[string]interface{})
			sm, sok := sv.(map[string]interface{})
			if dok && sok {
				deepMerge(dm, sm)
			}
			continue
		}
		dst[key] = sv
	}
}

func recordsToCache(records map[string]map[string]interface{}) domain.JSONMap {
	cache := make(domain.JSONMap, len(records))
	for k, v := range records {
		cache[k] = v
	}
	return cache
}

func cacheToRecords(cache domain.JSONMap) map[string]map[string]interface{} {
	records := make(map[string]map[string]interface{}, len(cache))
	for k, v := range cache {
		if m, ok := v.(map[string]interface{}); ok {
			records[k] = m
		}
	}
	return records
}

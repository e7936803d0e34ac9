package analyzer

import (
	"strings"

	"schema-graph/internal/catalog"
)

// LookupTable 码表（枚举表）：行数少，有 code + name 列
type LookupTable struct {
	TableID     string  `json:"table_id"`
	RowCount    int64   `json:"row_count"`
	KeyColumn   string  `json:"key_column"`
	ValueColumn string  `json:"value_column,omitempty"`
	Confidence  float64 `json:"confidence"`
}

const (
	lookupMaxRows       int64 = 1000
	lookupMinConfidence       = 0.6
)

var (
	lookupKeyPatterns   = []string{"code", "id", "key", "type"}
	lookupValuePatterns = []string{"name", "label", "desc", "value"}
)

// DetectLookupTables 按行数和列结构识别码表，只使用目录中的元数据
func DetectLookupTables(tables []catalog.Table, columnsByTable map[string][]catalog.Column) []LookupTable {
	var found []LookupTable
	for _, t := range tables {
		// 行数未知（视图等）或太多
		if t.NumRows <= 0 || t.NumRows > lookupMaxRows {
			continue
		}

		cols := columnsByTable[t.ID]
		keyCol, valueCol := findLookupColumns(cols)
		if keyCol == "" {
			continue
		}

		confidence := lookupConfidence(t.NumRows, len(cols), keyCol, valueCol)
		if confidence > lookupMinConfidence {
			found = append(found, LookupTable{
				TableID:     t.ID,
				RowCount:    t.NumRows,
				KeyColumn:   keyCol,
				ValueColumn: valueCol,
				Confidence:  confidence,
			})
		}
	}
	return found
}

// findLookupColumns 查找 key 列和 value 列
func findLookupColumns(columns []catalog.Column) (keyCol, valueCol string) {
	for _, col := range columns {
		lower := strings.ToLower(col.Name)
		if keyCol == "" && containsAny(lower, lookupKeyPatterns) {
			keyCol = col.Name
			continue
		}
		if valueCol == "" && containsAny(lower, lookupValuePatterns) {
			valueCol = col.Name
		}
	}
	return
}

// lookupConfidence 码表置信度
func lookupConfidence(rows int64, columns int, keyCol, valueCol string) float64 {
	score := 0.0

	// 行数少加分
	switch {
	case rows < 100:
		score += 0.4
	case rows < 500:
		score += 0.3
	default:
		score += 0.2
	}

	if keyCol != "" && valueCol != "" {
		score += 0.4
	} else if keyCol != "" {
		score += 0.2
	}

	// 典型码表 2-5 列
	if columns <= 5 {
		score += 0.2
	}
	return score
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

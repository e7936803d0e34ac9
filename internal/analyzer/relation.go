package analyzer

import (
	"regexp"
	"sort"
	"strings"

	"schema-graph/internal/catalog"
	"schema-graph/internal/metrics"

	"github.com/sirupsen/logrus"
)

// DetectionMethod 关系检测方式
type DetectionMethod string

const (
	MethodExplicitFK       DetectionMethod = "explicit_fk"
	MethodNamingConvention DetectionMethod = "naming_convention"
)

// DetectedRelationship 检测到的表间关系，创建后不再修改
type DetectedRelationship struct {
	FromTableID     string                 `json:"from_table_id"`
	FromColumn      string                 `json:"from_column"`
	ToTableID       string                 `json:"to_table_id"`
	ToColumn        string                 `json:"to_column"`
	Confidence      float64                `json:"confidence"`
	DetectionMethod DetectionMethod        `json:"detection_method"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// key 去重键
func (r DetectedRelationship) key() [4]string {
	return [4]string{r.FromTableID, r.FromColumn, r.ToTableID, r.ToColumn}
}

// idPatterns 外键列命名模式，按顺序尝试
var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^id$`),
	regexp.MustCompile(`^(.+)_id$`),
	regexp.MustCompile(`^(.+)id$`),
	regexp.MustCompile(`^fk_(.+)$`),
}

var (
	intTypes = map[string]bool{
		"INTEGER": true, "INT64": true, "BIGINT": true, "INT": true, "SMALLINT": true, "TINYINT": true,
	}
	stringTypes = map[string]bool{
		"STRING": true, "VARCHAR": true, "TEXT": true, "CHAR": true, "BPCHAR": true, "NVARCHAR": true, "NCHAR": true,
	}
)

// RelationshipDetector 关系检测器：显式外键 + 命名约定 + 类型兼容
type RelationshipDetector struct {
	heuristics Heuristics
	logger     logrus.FieldLogger
}

// NewRelationshipDetector 创建检测器
func NewRelationshipDetector(h Heuristics, logger logrus.FieldLogger) *RelationshipDetector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RelationshipDetector{heuristics: h, logger: logger}
}

// Detect 检测表间关系，按置信度降序返回
func (d *RelationshipDetector) Detect(tables []catalog.Table, columnsByTable map[string][]catalog.Column) []DetectedRelationship {
	var found []DetectedRelationship

	tableByName := make(map[string]catalog.Table, len(tables))
	for _, t := range tables {
		tableByName[t.Name] = t
	}

	for _, table := range tables {
		for _, col := range columnsByTable[table.ID] {
			// 1. 显式外键
			if col.IsForeignKey && col.ForeignKeyRef != "" {
				if rel, ok := d.explicit(table, col); ok {
					found = append(found, rel)
					continue
				}
			}

			// 2. 命名约定
			found = append(found, d.byNamingConvention(table, col, tableByName, columnsByTable)...)
		}
	}

	result := deduplicate(found)
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Confidence != result[j].Confidence {
			return result[i].Confidence > result[j].Confidence
		}
		ki, kj := result[i].key(), result[j].key()
		return strings.Join(ki[:], "\x00") < strings.Join(kj[:], "\x00")
	})

	for _, rel := range result {
		metrics.RelationshipsDetected.WithLabelValues(string(rel.DetectionMethod)).Inc()
	}
	return result
}

// explicit 解析显式外键引用 "table_id.column_name"
func (d *RelationshipDetector) explicit(table catalog.Table, col catalog.Column) (DetectedRelationship, bool) {
	toTable, toColumn, ok := catalog.SplitRef(col.ForeignKeyRef)
	if !ok {
		d.logger.WithFields(logrus.Fields{
			"table":  table.ID,
			"column": col.Name,
			"ref":    col.ForeignKeyRef,
		}).Debug("malformed foreign key reference")
		return DetectedRelationship{}, false
	}
	return DetectedRelationship{
		FromTableID:     table.ID,
		FromColumn:      col.Name,
		ToTableID:       toTable,
		ToColumn:        toColumn,
		Confidence:      1.0,
		DetectionMethod: MethodExplicitFK,
		Metadata:        map[string]interface{}{"datatype": col.Datatype},
	}, true
}

// byNamingConvention 按列名推断目标表
//
// customer_id -> customers.id, order_id -> orders.id
func (d *RelationshipDetector) byNamingConvention(
	from catalog.Table, col catalog.Column,
	tableByName map[string]catalog.Table,
	columnsByTable map[string][]catalog.Column,
) []DetectedRelationship {
	var found []DetectedRelationship
	name := strings.ToLower(col.Name)

	for _, pattern := range idPatterns {
		match := pattern.FindStringSubmatch(name)
		if len(match) < 2 {
			continue
		}
		entity := match[1]

		// 先试复数
		for _, candidate := range []string{entity + "s", entity, entity + "es"} {
			target, ok := tableByName[candidate]
			if !ok {
				continue
			}

			for _, targetCol := range columnsByTable[target.ID] {
				lower := strings.ToLower(targetCol.Name)
				if !targetCol.IsPrimaryKey && lower != "id" && lower != entity+"_id" {
					continue
				}
				if !isTypeCompatible(col.Datatype, targetCol.Datatype) {
					d.logger.WithFields(logrus.Fields{
						"from": from.ID + "." + col.Name,
						"to":   target.ID + "." + targetCol.Name,
					}).Debug("incompatible datatypes, candidate rejected")
					continue
				}

				found = append(found, DetectedRelationship{
					FromTableID:     from.ID,
					FromColumn:      col.Name,
					ToTableID:       target.ID,
					ToColumn:        targetCol.Name,
					Confidence:      d.confidence(col, targetCol, entity, candidate),
					DetectionMethod: MethodNamingConvention,
					Metadata: map[string]interface{}{
						"from_datatype": col.Datatype,
						"to_datatype":   targetCol.Datatype,
						"entity_name":   entity,
						"pattern":       pattern.String(),
					},
				})
			}
		}
	}
	return found
}

// confidence 命名约定推断的置信度
func (d *RelationshipDetector) confidence(from, to catalog.Column, entity, tableName string) float64 {
	h := d.heuristics
	c := h.BaseConfidence
	if to.IsPrimaryKey {
		c += h.PrimaryKeyBoost
	}
	if strings.EqualFold(from.Datatype, to.Datatype) {
		c += h.ExactTypeBoost
	}
	if tableName == entity+"s" {
		c += h.PluralBoost
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

// isTypeCompatible 判断类型是否兼容，类型缺失时不兼容
func isTypeCompatible(type1, type2 string) bool {
	t1 := strings.ToUpper(strings.TrimSpace(type1))
	t2 := strings.ToUpper(strings.TrimSpace(type2))
	if t1 == "" || t2 == "" {
		return false
	}

	if intTypes[t1] && intTypes[t2] {
		return true
	}
	if stringTypes[t1] && stringTypes[t2] {
		return true
	}
	return t1 == t2
}

// deduplicate 相同端点保留置信度最高的一条，保持首次出现顺序
func deduplicate(rels []DetectedRelationship) []DetectedRelationship {
	index := make(map[[4]string]int, len(rels))
	var out []DetectedRelationship
	for _, rel := range rels {
		k := rel.key()
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, rel)
			continue
		}
		if rel.Confidence > out[i].Confidence {
			out[i] = rel
		}
	}
	return out
}

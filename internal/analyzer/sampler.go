package analyzer

import (
	"context"
	"fmt"
	"strconv"

	"schema-graph/internal/adapter"
	"schema-graph/internal/metrics"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrSampling 单列采样查询失败，只影响这一列
var ErrSampling = errors.New("column sampling failed")

// ColumnRef 数据源中的列（数据集名、表名、列名）
type ColumnRef struct {
	Dataset string `json:"dataset"`
	Table   string `json:"table"`
	Column  string `json:"column"`
}

// TableID 采样结果中的表标识
func (c ColumnRef) TableID() string {
	if c.Dataset == "" {
		return c.Table
	}
	return c.Dataset + "." + c.Table
}

func (c ColumnRef) String() string {
	return c.TableID() + "." + c.Column
}

// DataSampleResult 单列采样结果，每次验证重新计算
type DataSampleResult struct {
	TableID          string        `json:"table_id"`
	ColumnName       string        `json:"column_name"`
	SampleValues     []interface{} `json:"sample_values"`
	DistinctCount    int64         `json:"distinct_count"`
	NullCount        int64         `json:"null_count"`
	TotalCount       int64         `json:"total_count"`
	CardinalityRatio float64       `json:"cardinality_ratio"`
}

// Cardinality 关系基数
type Cardinality string

const (
	OneToOne   Cardinality = "1:1"
	ManyToOne  Cardinality = "N:1"
	OneToMany  Cardinality = "1:N"
	ManyToMany Cardinality = "N:M"
)

// SampleStats 验证结果中单侧的统计
type SampleStats struct {
	DistinctCount    int64   `json:"distinct_count"`
	TotalCount       int64   `json:"total_count"`
	CardinalityRatio float64 `json:"cardinality_ratio"`
}

// Validation 关系验证结果，采样失败时 Valid=false 且 Error 非空
type Validation struct {
	Valid        bool         `json:"valid"`
	OverlapRatio float64      `json:"overlap_ratio"`
	Cardinality  Cardinality  `json:"cardinality,omitempty"`
	FromStats    *SampleStats `json:"from_stats,omitempty"`
	ToStats      *SampleStats `json:"to_stats,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// ColumnProfile 列画像
type ColumnProfile struct {
	TableID          string        `json:"table_id"`
	ColumnName       string        `json:"column_name"`
	TotalCount       int64         `json:"total_count"`
	DistinctCount    int64         `json:"distinct_count"`
	NullCount        int64         `json:"null_count"`
	CardinalityRatio float64       `json:"cardinality_ratio"`
	IsLikelyKey      bool          `json:"is_likely_key"`
	IsLikelyFK       bool          `json:"is_likely_fk"`
	SampleValues     []interface{} `json:"sample_values"`

	// ValuePatterns 全部采样值的形态分布
	ValuePatterns map[ValuePattern]int `json:"value_patterns,omitempty"`
}

// profileSampleValues 画像中展示的样本数
const profileSampleValues = 10

// DataSampler 数据采样器：基数、空值率、值样本
type DataSampler struct {
	exec       adapter.QueryExecutor
	heuristics Heuristics
	logger     logrus.FieldLogger
}

// NewDataSampler 创建采样器
func NewDataSampler(exec adapter.QueryExecutor, h Heuristics, logger logrus.FieldLogger) *DataSampler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DataSampler{exec: exec, heuristics: h, logger: logger}
}

// Sample 采样一列，失败时记录日志并返回 nil
func (s *DataSampler) Sample(ctx context.Context, ref ColumnRef) *DataSampleResult {
	result, err := s.sample(ctx, ref)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"table":  ref.TableID(),
			"column": ref.Column,
		}).Warn("sampling failed")
		return nil
	}
	return result
}

func (s *DataSampler) sample(ctx context.Context, ref ColumnRef) (*DataSampleResult, error) {
	dialect := s.exec.Dialect()

	// 1. 统计
	rows, err := s.exec.ExecuteQuery(ctx, dialect.StatsQuery(ref.Dataset, ref.Table, ref.Column))
	if err != nil {
		metrics.SamplingFailures.WithLabelValues("stats_query").Inc()
		return nil, errors.Wrapf(ErrSampling, "stats %s: %v", ref, err)
	}
	if len(rows) == 0 {
		metrics.SamplingFailures.WithLabelValues("empty_result").Inc()
		return nil, errors.Wrapf(ErrSampling, "stats %s: no rows", ref)
	}

	result := &DataSampleResult{
		TableID:       ref.TableID(),
		ColumnName:    ref.Column,
		TotalCount:    toInt64(rows[0]["total_count"]),
		DistinctCount: toInt64(rows[0]["distinct_count"]),
		NullCount:     toInt64(rows[0]["null_count"]),
	}
	if result.TotalCount > 0 {
		result.CardinalityRatio = float64(result.DistinctCount) / float64(result.TotalCount)
	}

	// 2. 非空唯一值样本
	rows, err = s.exec.ExecuteQuery(ctx, dialect.SampleQuery(ref.Dataset, ref.Table, ref.Column, s.heuristics.sampleLimit()))
	if err != nil {
		metrics.SamplingFailures.WithLabelValues("sample_query").Inc()
		return nil, errors.Wrapf(ErrSampling, "sample %s: %v", ref, err)
	}
	result.SampleValues = make([]interface{}, 0, len(rows))
	for _, row := range rows {
		result.SampleValues = append(result.SampleValues, row["value"])
	}
	return result, nil
}

// IsUnique 唯一值比例超过阈值视为近似唯一
func (s *DataSampler) IsUnique(r *DataSampleResult) bool {
	return r.CardinalityRatio > s.heuristics.UniqueRatio
}

// Overlap 两组样本的 Jaccard 相似度，任一为空时为 0
//
// 值按文本比较，不同驱动返回的 int64 / string 可以互相匹配。
func Overlap(a, b *DataSampleResult) float64 {
	if a == nil || b == nil || len(a.SampleValues) == 0 || len(b.SampleValues) == 0 {
		return 0
	}
	setA := valueSet(a.SampleValues)
	setB := valueSet(b.SampleValues)

	union := setA.Union(setB).Cardinality()
	if union == 0 {
		return 0
	}
	return float64(setA.Intersect(setB).Cardinality()) / float64(union)
}

func valueSet(values []interface{}) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSetWithSize[string](len(values))
	for _, v := range values {
		set.Add(fmt.Sprint(v))
	}
	return set
}

// CardinalityShape 根据两侧是否近似唯一判断基数
func (s *DataSampler) CardinalityShape(from, to *DataSampleResult) Cardinality {
	return cardinalityShape(s.IsUnique(from), s.IsUnique(to))
}

func cardinalityShape(fromUnique, toUnique bool) Cardinality {
	switch {
	case fromUnique && toUnique:
		return OneToOne
	case fromUnique:
		return ManyToOne
	case toUnique:
		return OneToMany
	default:
		return ManyToMany
	}
}

// Validate 采样两列，按值重叠度验证关系
func (s *DataSampler) Validate(ctx context.Context, from, to ColumnRef) Validation {
	fromSample := s.Sample(ctx, from)
	toSample := s.Sample(ctx, to)
	if fromSample == nil || toSample == nil {
		return Validation{Valid: false, Error: "Could not sample columns"}
	}

	overlap := Overlap(fromSample, toSample)
	return Validation{
		Valid:        overlap > s.heuristics.OverlapThreshold,
		OverlapRatio: overlap,
		Cardinality:  s.CardinalityShape(fromSample, toSample),
		FromStats:    stats(fromSample),
		ToStats:      stats(toSample),
	}
}

func stats(r *DataSampleResult) *SampleStats {
	return &SampleStats{
		DistinctCount:    r.DistinctCount,
		TotalCount:       r.TotalCount,
		CardinalityRatio: r.CardinalityRatio,
	}
}

// Profile 列画像：是否像主键、是否像外键
func (s *DataSampler) Profile(ctx context.Context, ref ColumnRef) (*ColumnProfile, error) {
	sample, err := s.sample(ctx, ref)
	if err != nil {
		s.logger.WithError(err).WithField("column", ref.String()).Warn("profile sampling failed")
		return nil, err
	}

	h := s.heuristics
	values := sample.SampleValues
	if len(values) > profileSampleValues {
		values = values[:profileSampleValues]
	}
	return &ColumnProfile{
		TableID:          sample.TableID,
		ColumnName:       sample.ColumnName,
		TotalCount:       sample.TotalCount,
		DistinctCount:    sample.DistinctCount,
		NullCount:        sample.NullCount,
		CardinalityRatio: sample.CardinalityRatio,
		IsLikelyKey:      sample.CardinalityRatio > h.UniqueRatio && sample.NullCount == 0,
		IsLikelyFK: sample.CardinalityRatio > h.FKRatioMin &&
			sample.CardinalityRatio < h.UniqueRatio &&
			float64(sample.NullCount) < float64(sample.TotalCount)*h.FKNullRatioMax,
		SampleValues:  values,
		ValuePatterns: valuePatterns(sample.SampleValues),
	}, nil
}

// toInt64 统计值转换，兼容各驱动返回的数值类型
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

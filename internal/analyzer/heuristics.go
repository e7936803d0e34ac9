package analyzer

// Heuristics 关系检测和采样验证使用的启发式参数
type Heuristics struct {
	// 命名约定推断的置信度
	BaseConfidence  float64 `koanf:"base_confidence" yaml:"base_confidence"`
	PrimaryKeyBoost float64 `koanf:"primary_key_boost" yaml:"primary_key_boost"`
	ExactTypeBoost  float64 `koanf:"exact_type_boost" yaml:"exact_type_boost"`
	PluralBoost     float64 `koanf:"plural_boost" yaml:"plural_boost"`

	// 采样统计阈值
	UniqueRatio      float64 `koanf:"unique_ratio" yaml:"unique_ratio"`
	FKRatioMin       float64 `koanf:"fk_ratio_min" yaml:"fk_ratio_min"`
	FKNullRatioMax   float64 `koanf:"fk_null_ratio_max" yaml:"fk_null_ratio_max"`
	OverlapThreshold float64 `koanf:"overlap_threshold" yaml:"overlap_threshold"`

	SampleSize       int `koanf:"sample_size" yaml:"sample_size"`
	SampleValueLimit int `koanf:"sample_value_limit" yaml:"sample_value_limit"`
}

// DefaultHeuristics 默认参数
func DefaultHeuristics() Heuristics {
	return Heuristics{
		BaseConfidence:   0.5,
		PrimaryKeyBoost:  0.3,
		ExactTypeBoost:   0.1,
		PluralBoost:      0.1,
		UniqueRatio:      0.95,
		FKRatioMin:       0.30,
		FKNullRatioMax:   0.10,
		OverlapThreshold: 0.10,
		SampleSize:       1000,
		SampleValueLimit: 100,
	}
}

// sampleLimit 单列采样值上限
func (h Heuristics) sampleLimit() int {
	limit := h.SampleValueLimit
	if h.SampleSize > 0 && (limit <= 0 || h.SampleSize < limit) {
		limit = h.SampleSize
	}
	if limit <= 0 {
		limit = 100
	}
	return limit
}

package graph

// Options 图引擎参数
type Options struct {
	// 间接关系强度 = min(共同邻居数 / IndirectDivisor, IndirectCap)
	IndirectDivisor float64 `koanf:"indirect_divisor" yaml:"indirect_divisor"`
	IndirectCap     float64 `koanf:"indirect_cap" yaml:"indirect_cap"`

	StrongThreshold    float64 `koanf:"strong_threshold" yaml:"strong_threshold"`
	DefaultPathDepth   int     `koanf:"default_path_depth" yaml:"default_path_depth"`
	ActivityWindowDays int     `koanf:"activity_window_days" yaml:"activity_window_days"`
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		IndirectDivisor:    10,
		IndirectCap:        0.5,
		StrongThreshold:    0.7,
		DefaultPathDepth:   3,
		ActivityWindowDays: 30,
	}
}

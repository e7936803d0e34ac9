// Package config 加载 schema-graph 的分层配置
//
// 优先级（从低到高）：默认值、YAML 文件、SCHEMA_GRAPH_ 环境变量、显式设置的命令行参数。
package config

import (
	"os"
	"strings"

	"schema-graph/internal/adapter"
	"schema-graph/internal/analyzer"
	"schema-graph/internal/builder"
	"schema-graph/internal/catalog"
	"schema-graph/internal/graph"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// EnvPrefix 环境变量前缀，层级用双下划线分隔：SCHEMA_GRAPH_LOG__LEVEL -> log.level
const EnvPrefix = "SCHEMA_GRAPH_"

// DefaultFile 未指定配置文件时尝试读取的文件
const DefaultFile = "schema-graph.yaml"

// Config 全部配置
type Config struct {
	Log       LogConfig            `koanf:"log"`
	Sources   []catalog.DataSource `koanf:"sources"`
	Analyzer  analyzer.Heuristics  `koanf:"analyzer"`
	Graph     graph.Options        `koanf:"graph"`
	Builder   BuilderConfig        `koanf:"builder"`
	Semantics SemanticsConfig      `koanf:"semantics"`
	Server    ServerConfig         `koanf:"server"`
}

// LogConfig 日志
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// BuilderConfig 图构建开关
type BuilderConfig struct {
	Validate    bool `koanf:"validate"`
	DropInvalid bool `koanf:"drop_invalid"`
}

// SemanticsConfig 语义模型目录，包含 model.yaml 和 mappings.yaml
type SemanticsConfig struct {
	Dir string `koanf:"dir"`
}

// ServerConfig HTTP 服务
type ServerConfig struct {
	Addr        string `koanf:"addr"`
	ScanWorkers int    `koanf:"scan_workers"`
}

// flagKeys 命令行参数到配置键的映射，不在表中的参数不参与配置
var flagKeys = map[string]string{
	"log-level":     "log.level",
	"log-format":    "log.format",
	"validate":      "builder.validate",
	"drop-invalid":  "builder.drop_invalid",
	"semantics-dir": "semantics.dir",
	"addr":          "server.addr",
	"scan-workers":  "server.scan_workers",
	"sample-size":   "analyzer.sample_size",
	"depth":         "graph.default_path_depth",
}

func defaults() map[string]interface{} {
	h := analyzer.DefaultHeuristics()
	o := graph.DefaultOptions()
	return map[string]interface{}{
		"log.level":  "info",
		"log.format": "text",

		"analyzer.base_confidence":    h.BaseConfidence,
		"analyzer.primary_key_boost":  h.PrimaryKeyBoost,
		"analyzer.exact_type_boost":   h.ExactTypeBoost,
		"analyzer.plural_boost":       h.PluralBoost,
		"analyzer.unique_ratio":       h.UniqueRatio,
		"analyzer.fk_ratio_min":       h.FKRatioMin,
		"analyzer.fk_null_ratio_max":  h.FKNullRatioMax,
		"analyzer.overlap_threshold":  h.OverlapThreshold,
		"analyzer.sample_size":        h.SampleSize,
		"analyzer.sample_value_limit": h.SampleValueLimit,

		"graph.indirect_divisor":     o.IndirectDivisor,
		"graph.indirect_cap":         o.IndirectCap,
		"graph.strong_threshold":     o.StrongThreshold,
		"graph.default_path_depth":   o.DefaultPathDepth,
		"graph.activity_window_days": o.ActivityWindowDays,

		"builder.validate":     false,
		"builder.drop_invalid": false,

		"semantics.dir": "semantics",

		"server.addr":         ":8080",
		"server.scan_workers": 4,
	}
}

// Load 加载配置。path 为空时读取当前目录的 schema-graph.yaml（存在的话），flags 可为 nil
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. 默认值
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	// 2. 配置文件
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}

	// 3. 环境变量
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "load env vars")
	}

	// 4. 显式设置的命令行参数
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, errors.Wrap(err, "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey SCHEMA_GRAPH_ANALYZER__SAMPLE_SIZE -> analyzer.sample_size
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate 检查数据源定义和数值范围
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return errors.Errorf("sources[%d]: id is required", i)
		}
		if seen[s.ID] {
			return errors.Errorf("sources[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true

		switch adapter.Dialect(strings.ToLower(s.Type)) {
		case adapter.DialectMySQL, adapter.DialectSQLServer, adapter.DialectPostgres, adapter.DialectSQLite:
		default:
			return errors.Errorf("sources[%d]: unsupported type %q", i, s.Type)
		}
	}

	if c.Analyzer.OverlapThreshold < 0 || c.Analyzer.OverlapThreshold > 1 {
		return errors.Errorf("analyzer.overlap_threshold must be within [0, 1], got %v", c.Analyzer.OverlapThreshold)
	}
	if c.Graph.IndirectDivisor <= 0 {
		return errors.Errorf("graph.indirect_divisor must be positive, got %v", c.Graph.IndirectDivisor)
	}
	if c.Builder.DropInvalid && !c.Builder.Validate {
		return errors.New("builder.drop_invalid requires builder.validate")
	}
	return nil
}

// BuilderOptions 组装构建器参数
func (c *Config) BuilderOptions() builder.Config {
	return builder.Config{
		Heuristics:  c.Analyzer,
		Graph:       c.Graph,
		Validate:    c.Builder.Validate,
		DropInvalid: c.Builder.DropInvalid,
	}
}

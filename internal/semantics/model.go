// Package semantics 业务语义模型：实体、属性、实体关系，以及实体到物理表的映射
package semantics

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	modelFile    = "model.yaml"
	mappingsFile = "mappings.yaml"
)

// Attribute 实体属性
type Attribute struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Entity 业务实体，如 Customer、Invoice
type Entity struct {
	Name        string      `yaml:"-" json:"name"`
	Label       string      `yaml:"label" json:"label"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Attributes  []Attribute `yaml:"attributes" json:"attributes"`
}

// Relation 实体间关系
type Relation struct {
	Name        string `yaml:"name" json:"name"`
	FromEntity  string `yaml:"from_entity" json:"from_entity"`
	ToEntity    string `yaml:"to_entity" json:"to_entity"`
	Cardinality string `yaml:"cardinality" json:"cardinality"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Mapping 实体到物理表的映射
type Mapping struct {
	EntityName   string            `yaml:"-" json:"entity_name"`
	DatasourceID string            `yaml:"datasource" json:"datasource_id"`
	Dataset      string            `yaml:"dataset" json:"dataset"`
	Table        string            `yaml:"table" json:"table"`
	Keys         []string          `yaml:"keys" json:"keys"`
	Attributes   map[string]string `yaml:"attributes" json:"attributes"` // 实体属性 -> 物理列
}

// Model 语义模型
type Model struct {
	entities  map[string]Entity
	relations []Relation
	mappings  map[string]Mapping
}

type modelDoc struct {
	Entities  map[string]Entity `yaml:"entities"`
	Relations []Relation        `yaml:"relations"`
}

type mappingsDoc struct {
	Mappings map[string]Mapping `yaml:"mappings"`
}

// Empty 空模型
func Empty() *Model {
	return &Model{entities: map[string]Entity{}, mappings: map[string]Mapping{}}
}

// Load 从目录加载 model.yaml 和 mappings.yaml，目录或文件不存在时跳过
func Load(dir string, logger logrus.FieldLogger) (*Model, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if dir == "" {
		return Empty(), nil
	}
	if _, err := os.Stat(dir); err != nil {
		logger.WithField("dir", dir).Warn("semantic config directory not found, skipping")
		return Empty(), nil
	}

	modelData, err := readOptional(filepath.Join(dir, modelFile))
	if err != nil {
		return nil, err
	}
	mappingsData, err := readOptional(filepath.Join(dir, mappingsFile))
	if err != nil {
		return nil, err
	}

	m, err := Parse(modelData, mappingsData)
	if err != nil {
		return nil, errors.Wrapf(err, "load semantics from %s", dir)
	}
	logger.WithFields(logrus.Fields{
		"entities":  len(m.entities),
		"relations": len(m.relations),
		"mappings":  len(m.mappings),
	}).Info("semantic model loaded")
	return m, nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}

// Parse 解析模型和映射文件内容，任一为空时视为没有定义
func Parse(modelYAML, mappingsYAML []byte) (*Model, error) {
	m := Empty()

	var md modelDoc
	if err := yaml.Unmarshal(modelYAML, &md); err != nil {
		return nil, errors.Wrap(err, "parse "+modelFile)
	}
	for name, e := range md.Entities {
		e.Name = name
		if e.Label == "" {
			e.Label = name
		}
		m.entities[name] = e
	}
	for _, r := range md.Relations {
		if _, ok := m.entities[r.FromEntity]; !ok {
			return nil, errors.Errorf("relation %q: unknown entity %q", r.Name, r.FromEntity)
		}
		if _, ok := m.entities[r.ToEntity]; !ok {
			return nil, errors.Errorf("relation %q: unknown entity %q", r.Name, r.ToEntity)
		}
		m.relations = append(m.relations, r)
	}

	var mp mappingsDoc
	if err := yaml.Unmarshal(mappingsYAML, &mp); err != nil {
		return nil, errors.Wrap(err, "parse "+mappingsFile)
	}
	for name, mapping := range mp.Mappings {
		mapping.EntityName = name
		m.mappings[name] = mapping
	}
	return m, nil
}

// Entity 按名称取实体
func (m *Model) Entity(name string) (Entity, bool) {
	e, ok := m.entities[name]
	return e, ok
}

// Entities 所有实体，按名称排序
func (m *Model) Entities() []Entity {
	out := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Relations 实体关系，保持文件中的顺序
func (m *Model) Relations() []Relation {
	return m.relations
}

// Mapping 实体的物理映射
func (m *Model) Mapping(entity string) (Mapping, bool) {
	mp, ok := m.mappings[entity]
	return mp, ok
}

// Mappings 所有映射，按实体名排序
func (m *Model) Mappings() []Mapping {
	out := make([]Mapping, 0, len(m.mappings))
	for _, mp := range m.mappings {
		out = append(out, mp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityName < out[j].EntityName })
	return out
}

// EntityNames 实体名列表
func (m *Model) EntityNames() []string {
	names := make([]string, 0, len(m.entities))
	for name := range m.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package catalog

import (
	"sort"
	"time"

	"schema-graph/internal/adapter"

	"github.com/pkg/errors"
)

// Snapshot 元数据的不可变视图，发布后不再修改，读者无需加锁
type Snapshot struct {
	Version   string
	UpdatedAt time.Time

	datasources    map[string]DataSource
	datasets       map[string]Dataset
	tables         map[string]Table
	columnsByTable map[string][]Column
	connectors     map[string]adapter.DBAdapter
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		datasources:    make(map[string]DataSource),
		datasets:       make(map[string]Dataset),
		tables:         make(map[string]Table),
		columnsByTable: make(map[string][]Column),
		connectors:     make(map[string]adapter.DBAdapter),
	}
}

// clone 浅拷贝所有索引，切片整体替换不原地修改
func (s *Snapshot) clone() *Snapshot {
	c := emptySnapshot()
	for k, v := range s.datasources {
		c.datasources[k] = v
	}
	for k, v := range s.datasets {
		c.datasets[k] = v
	}
	for k, v := range s.tables {
		c.tables[k] = v
	}
	for k, v := range s.columnsByTable {
		c.columnsByTable[k] = v
	}
	for k, v := range s.connectors {
		c.connectors[k] = v
	}
	return c
}

// dropSource 删除某个数据源下的数据集、表和列
func (s *Snapshot) dropSource(sourceID string) {
	for id, ds := range s.datasets {
		if ds.DataSourceID == sourceID {
			delete(s.datasets, id)
		}
	}
	for id, t := range s.tables {
		if t.DataSourceID == sourceID {
			delete(s.tables, id)
			delete(s.columnsByTable, id)
		}
	}
}

// ListDatasources 所有数据源，按 ID 排序
func (s *Snapshot) ListDatasources() []DataSource {
	out := make([]DataSource, 0, len(s.datasources))
	for _, ds := range s.datasources {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListDatasets 数据源下的数据集
func (s *Snapshot) ListDatasets(sourceID string) []Dataset {
	var out []Dataset
	for _, d := range s.datasets {
		if d.DataSourceID == sourceID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListTables 数据集下的表
func (s *Snapshot) ListTables(datasetID string) []Table {
	var out []Table
	for _, t := range s.tables {
		if t.DatasetID == datasetID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListColumns 表的列，保持扫描顺序
func (s *Snapshot) ListColumns(tableID string) []Column {
	cols := s.columnsByTable[tableID]
	out := make([]Column, len(cols))
	copy(out, cols)
	return out
}

// Datasource 按 ID 取数据源
func (s *Snapshot) Datasource(id string) (DataSource, error) {
	ds, ok := s.datasources[id]
	if !ok {
		return DataSource{}, notFound("datasource", id, keys(s.datasources))
	}
	return ds, nil
}

// Dataset 按 ID 取数据集
func (s *Snapshot) Dataset(id string) (Dataset, error) {
	d, ok := s.datasets[id]
	if !ok {
		return Dataset{}, notFound("dataset", id, keys(s.datasets))
	}
	return d, nil
}

// Table 按 ID 取表
func (s *Snapshot) Table(id string) (Table, error) {
	t, ok := s.tables[id]
	if !ok {
		return Table{}, notFound("table", id, keys(s.tables))
	}
	return t, nil
}

// HasTable 表是否存在
func (s *Snapshot) HasTable(id string) bool {
	_, ok := s.tables[id]
	return ok
}

// HasColumn 列是否存在
func (s *Snapshot) HasColumn(tableID, name string) bool {
	for _, c := range s.columnsByTable[tableID] {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ConnectorForDataset 数据集所属数据源的连接
func (s *Snapshot) ConnectorForDataset(datasetID string) (adapter.DBAdapter, error) {
	d, err := s.Dataset(datasetID)
	if err != nil {
		return nil, err
	}
	conn, ok := s.connectors[d.DataSourceID]
	if !ok || conn == nil {
		return nil, errors.Wrapf(ErrNoConnector, "dataset %q", datasetID)
	}
	return conn, nil
}

// Counts 各类元数据数量
func (s *Snapshot) Counts() map[string]int {
	columns := 0
	for _, cols := range s.columnsByTable {
		columns += len(cols)
	}
	return map[string]int{
		"datasources": len(s.datasources),
		"datasets":    len(s.datasets),
		"tables":      len(s.tables),
		"columns":     columns,
	}
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

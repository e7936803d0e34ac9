package catalog

import "strings"

// DataSource 数据源（一个数据库连接）
type DataSource struct {
	ID          string `json:"id" koanf:"id" yaml:"id"`
	Type        string `json:"type" koanf:"type" yaml:"type"`
	Name        string `json:"name" koanf:"name" yaml:"name"`
	DSN         string `json:"-" koanf:"dsn" yaml:"dsn"`
	Schema      string `json:"schema,omitempty" koanf:"schema" yaml:"schema"`
	Description string `json:"description,omitempty" koanf:"description" yaml:"description"`
}

// Dataset 数据集（schema / database）
type Dataset struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DataSourceID string `json:"datasource_id"`
}

// Table 表
type Table struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DatasetID    string `json:"dataset_id"`
	DataSourceID string `json:"datasource_id"`
	NumRows      int64  `json:"num_rows"`
	Type         string `json:"type"`
}

// Column 列
type Column struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TableID       string `json:"table_id"`
	Datatype      string `json:"datatype"`
	IsNullable    bool   `json:"is_nullable"`
	IsPrimaryKey  bool   `json:"is_primary_key"`
	IsForeignKey  bool   `json:"is_foreign_key"`
	ForeignKeyRef string `json:"foreign_key_ref,omitempty"` // 格式 "table_id.column_name"
	Description   string `json:"description,omitempty"`
}

// ScanStats 扫描统计
type ScanStats struct {
	Datasets int `json:"datasets"`
	Tables   int `json:"tables"`
	Columns  int `json:"columns"`
}

// DatasetID 数据集 ID
func DatasetID(sourceID, dataset string) string {
	return sourceID + "." + dataset
}

// TableID 表 ID
func TableID(datasetID, table string) string {
	return datasetID + "." + table
}

// ColumnID 列 ID
func ColumnID(tableID, column string) string {
	return tableID + "." + column
}

// SplitRef 拆分 "table_id.column_name"，表 ID 本身含分隔符，按最后一个分隔符拆
func SplitRef(ref string) (tableID, column string, ok bool) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}

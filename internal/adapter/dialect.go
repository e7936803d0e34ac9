package adapter

import (
	"fmt"
	"strings"
)

// Dialect 数据源 SQL 方言
type Dialect string

const (
	DialectMySQL     Dialect = "mysql"
	DialectSQLServer Dialect = "sqlserver"
	DialectPostgres  Dialect = "postgres"
	DialectSQLite    Dialect = "sqlite"
)

// Quote 引用标识符
func (d Dialect) Quote(ident string) string {
	switch d {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	case DialectSQLServer:
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// Table 带数据集前缀的表引用
func (d Dialect) Table(dataset, table string) string {
	if dataset == "" {
		return d.Quote(table)
	}
	return d.Quote(dataset) + "." + d.Quote(table)
}

// StatsQuery 列统计查询：总行数、唯一值数、NULL 数
func (d Dialect) StatsQuery(dataset, table, column string) string {
	col := d.Quote(column)
	return fmt.Sprintf(
		"SELECT COUNT(*) AS total_count, COUNT(DISTINCT %s) AS distinct_count, "+
			"SUM(CASE WHEN %s IS NULL THEN 1 ELSE 0 END) AS null_count FROM %s",
		col, col, d.Table(dataset, table))
}

// SampleQuery 非空唯一值采样查询
func (d Dialect) SampleQuery(dataset, table, column string, limit int) string {
	col := d.Quote(column)
	if d == DialectSQLServer {
		return fmt.Sprintf("SELECT DISTINCT TOP %d %s AS value FROM %s WHERE %s IS NOT NULL",
			limit, col, d.Table(dataset, table), col)
	}
	return fmt.Sprintf("SELECT DISTINCT %s AS value FROM %s WHERE %s IS NOT NULL LIMIT %d",
		col, d.Table(dataset, table), col, limit)
}

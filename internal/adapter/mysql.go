package adapter

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLAdapter MySQL 适配器
type MySQLAdapter struct {
	sqlAdapter
	schema string
}

// NewMySQLAdapter 创建 MySQL 适配器，schema 为空时扫描所有用户库
func NewMySQLAdapter(ctx context.Context, connStr, schema string) (*MySQLAdapter, error) {
	db, err := openDB(ctx, "mysql", connStr)
	if err != nil {
		return nil, err
	}
	return &MySQLAdapter{sqlAdapter: sqlAdapter{db: db, dialect: DialectMySQL}, schema: schema}, nil
}

// ListDatasets 列出数据库
func (a *MySQLAdapter) ListDatasets(ctx context.Context) ([]string, error) {
	if a.schema != "" {
		return []string{a.schema}, nil
	}

	query := `
		SELECT SCHEMA_NAME
		FROM INFORMATION_SCHEMA.SCHEMATA
		WHERE SCHEMA_NAME NOT IN ('information_schema', 'mysql', 'performance_schema', 'sys')
		ORDER BY SCHEMA_NAME
	`
	return queryStrings(ctx, a.db, query)
}

// ListTables 列出表
func (a *MySQLAdapter) ListTables(ctx context.Context, dataset string) ([]TableMetadata, error) {
	query := `
		SELECT TABLE_NAME, TABLE_TYPE, COALESCE(TABLE_ROWS, 0)
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME
	`
	rows, err := a.db.QueryContext(ctx, query, dataset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []TableMetadata
	for rows.Next() {
		var t TableMetadata
		if err := rows.Scan(&t.Name, &t.Type, &t.NumRows); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// GetSchema 获取列
func (a *MySQLAdapter) GetSchema(ctx context.Context, dataset, table string) ([]ColumnMetadata, error) {
	query := `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			COALESCE(CHARACTER_MAXIMUM_LENGTH, 0),
			IS_NULLABLE = 'YES',
			COLUMN_KEY = 'PRI',
			COLUMN_COMMENT
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	rows, err := a.db.QueryContext(ctx, query, dataset, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []ColumnMetadata
	for rows.Next() {
		var c ColumnMetadata
		if err := rows.Scan(&c.Name, &c.DataType, &c.Length, &c.Nullable, &c.IsPrimaryKey, &c.Description); err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// GetForeignKeys 获取外键约束
func (a *MySQLAdapter) GetForeignKeys(ctx context.Context, dataset string) ([]ForeignKey, error) {
	query := `
		SELECT
			kcu.TABLE_NAME,
			kcu.COLUMN_NAME,
			kcu.REFERENCED_TABLE_NAME,
			kcu.REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		WHERE kcu.TABLE_SCHEMA = ?
			AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
	`
	return queryForeignKeys(ctx, a.db, query, dataset)
}

// queryStrings 单列字符串结果
func queryStrings(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// queryForeignKeys 四列外键结果
func queryForeignKeys(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

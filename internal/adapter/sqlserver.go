package adapter

import (
	"context"

	_ "github.com/denisenkom/go-mssqldb"
)

// SQLServerAdapter SQL Server 适配器
type SQLServerAdapter struct {
	sqlAdapter
	schema string
}

// NewSQLServerAdapter 创建 SQL Server 适配器，schema 为空时扫描所有 schema
func NewSQLServerAdapter(ctx context.Context, connStr, schema string) (*SQLServerAdapter, error) {
	db, err := openDB(ctx, "sqlserver", connStr)
	if err != nil {
		return nil, err
	}
	return &SQLServerAdapter{sqlAdapter: sqlAdapter{db: db, dialect: DialectSQLServer}, schema: schema}, nil
}

// ListDatasets 列出 schema
func (a *SQLServerAdapter) ListDatasets(ctx context.Context) ([]string, error) {
	if a.schema != "" {
		return []string{a.schema}, nil
	}

	query := `
		SELECT DISTINCT TABLE_SCHEMA
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_SCHEMA
	`
	return queryStrings(ctx, a.db, query)
}

// ListTables 列出表（行数取自 sys.partitions）
func (a *SQLServerAdapter) ListTables(ctx context.Context, dataset string) ([]TableMetadata, error) {
	query := `
		SELECT t.TABLE_NAME, t.TABLE_TYPE, COALESCE(SUM(p.rows), 0)
		FROM INFORMATION_SCHEMA.TABLES t
		LEFT JOIN sys.tables st ON st.name = t.TABLE_NAME AND SCHEMA_NAME(st.schema_id) = t.TABLE_SCHEMA
		LEFT JOIN sys.partitions p ON p.object_id = st.object_id AND p.index_id IN (0, 1)
		WHERE t.TABLE_SCHEMA = @p1
		GROUP BY t.TABLE_NAME, t.TABLE_TYPE
		ORDER BY t.TABLE_NAME
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
func (a *SQLServerAdapter) GetSchema(ctx context.Context, dataset, table string) ([]ColumnMetadata, error) {
	query := `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			COALESCE(c.CHARACTER_MAXIMUM_LENGTH, 0) as LENGTH,
			CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END as NULLABLE,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END as IS_PK
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT ku.TABLE_SCHEMA, ku.TABLE_NAME, ku.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ku
				ON tc.CONSTRAINT_NAME = ku.CONSTRAINT_NAME
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		) pk ON c.TABLE_SCHEMA = pk.TABLE_SCHEMA
			AND c.TABLE_NAME = pk.TABLE_NAME
			AND c.COLUMN_NAME = pk.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION
	`
	rows, err := a.db.QueryContext(ctx, query, dataset, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []ColumnMetadata
	for rows.Next() {
		var c ColumnMetadata
		var nullable, isPK int
		if err := rows.Scan(&c.Name, &c.DataType, &c.Length, &nullable, &isPK); err != nil {
			return nil, err
		}
		c.Nullable = nullable == 1
		c.IsPrimaryKey = isPK == 1
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// GetForeignKeys 获取外键约束
func (a *SQLServerAdapter) GetForeignKeys(ctx context.Context, dataset string) ([]ForeignKey, error) {
	query := `
		SELECT
			OBJECT_NAME(fk.parent_object_id) as from_table,
			COL_NAME(fkc.parent_object_id, fkc.parent_column_id) as from_column,
			OBJECT_NAME(fk.referenced_object_id) as to_table,
			COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id) as to_column
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
		WHERE OBJECT_SCHEMA_NAME(fk.parent_object_id) = @p1
	`
	return queryForeignKeys(ctx, a.db, query, dataset)
}

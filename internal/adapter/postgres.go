package adapter

import (
	"context"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresAdapter PostgreSQL 适配器
type PostgresAdapter struct {
	sqlAdapter
	schema string
}

// NewPostgresAdapter 创建 PostgreSQL 适配器，schema 为空时扫描所有用户 schema
func NewPostgresAdapter(ctx context.Context, connStr, schema string) (*PostgresAdapter, error) {
	db, err := openDB(ctx, "pgx", connStr)
	if err != nil {
		return nil, err
	}
	return &PostgresAdapter{sqlAdapter: sqlAdapter{db: db, dialect: DialectPostgres}, schema: schema}, nil
}

// ListDatasets 列出 schema
func (a *PostgresAdapter) ListDatasets(ctx context.Context) ([]string, error) {
	if a.schema != "" {
		return []string{a.schema}, nil
	}

	query := `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema')
			AND schema_name NOT LIKE 'pg\_%'
		ORDER BY schema_name
	`
	return queryStrings(ctx, a.db, query)
}

// ListTables 列出表（行数取自 pg_stat_user_tables 估算）
func (a *PostgresAdapter) ListTables(ctx context.Context, dataset string) ([]TableMetadata, error) {
	query := `
		SELECT t.table_name, t.table_type, COALESCE(s.n_live_tup, 0)
		FROM information_schema.tables t
		LEFT JOIN pg_stat_user_tables s
			ON s.schemaname = t.table_schema AND s.relname = t.table_name
		WHERE t.table_schema = $1
		ORDER BY t.table_name
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
func (a *PostgresAdapter) GetSchema(ctx context.Context, dataset, table string) ([]ColumnMetadata, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			COALESCE(c.character_maximum_length, 0),
			c.is_nullable = 'YES',
			pk.column_name IS NOT NULL
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.table_schema, kcu.table_name, kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
		) pk ON pk.table_schema = c.table_schema
			AND pk.table_name = c.table_name
			AND pk.column_name = c.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`
	rows, err := a.db.QueryContext(ctx, query, dataset, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []ColumnMetadata
	for rows.Next() {
		var c ColumnMetadata
		if err := rows.Scan(&c.Name, &c.DataType, &c.Length, &c.Nullable, &c.IsPrimaryKey); err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// GetForeignKeys 获取外键约束
func (a *PostgresAdapter) GetForeignKeys(ctx context.Context, dataset string) ([]ForeignKey, error) {
	query := `
		SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
	`
	return queryForeignKeys(ctx, a.db, query, dataset)
}

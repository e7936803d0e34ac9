package adapter

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

// DBAdapter 数据源适配器接口（元数据提供者 + 查询执行）
type DBAdapter interface {
	QueryExecutor

	// ListDatasets 列出数据集（schema / database）
	ListDatasets(ctx context.Context) ([]string, error)

	// ListTables 列出数据集下的表
	ListTables(ctx context.Context, dataset string) ([]TableMetadata, error)

	// GetSchema 获取表的列信息
	GetSchema(ctx context.Context, dataset, table string) ([]ColumnMetadata, error)

	// GetForeignKeys 获取声明的外键约束，数据源没有约束时返回空
	GetForeignKeys(ctx context.Context, dataset string) ([]ForeignKey, error)

	// Ping 检查连接
	Ping(ctx context.Context) error

	// Close 关闭连接
	Close() error
}

// QueryExecutor 查询执行器，采样器只依赖这一部分
type QueryExecutor interface {
	// ExecuteQuery 执行数据源方言的查询文本，返回行
	ExecuteQuery(ctx context.Context, query string) ([]Row, error)

	// Dialect 查询方言
	Dialect() Dialect
}

// Row 查询结果行，列名 -> 值
type Row map[string]interface{}

// TableMetadata 表信息
type TableMetadata struct {
	Name    string
	Type    string
	NumRows int64
}

// ColumnMetadata 列信息
type ColumnMetadata struct {
	Name         string
	DataType     string
	Length       int
	Nullable     bool
	IsPrimaryKey bool
	Description  string
}

// ForeignKey 外键
type ForeignKey struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// ErrUnsupportedType 不支持的数据源类型
var ErrUnsupportedType = errors.New("unsupported datasource type")

// Open 按类型创建适配器
func Open(ctx context.Context, typ, dsn, schema string) (DBAdapter, error) {
	switch Dialect(strings.ToLower(typ)) {
	case DialectMySQL:
		return NewMySQLAdapter(ctx, dsn, schema)
	case DialectSQLServer:
		return NewSQLServerAdapter(ctx, dsn, schema)
	case DialectPostgres:
		return NewPostgresAdapter(ctx, dsn, schema)
	case DialectSQLite:
		return NewSQLiteAdapter(ctx, dsn)
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "type %q", typ)
	}
}

// FromDB 用已打开的连接创建适配器（测试和嵌入场景）
func FromDB(db *sql.DB, dialect Dialect, schema string) (DBAdapter, error) {
	base := sqlAdapter{db: db, dialect: dialect}
	switch dialect {
	case DialectMySQL:
		return &MySQLAdapter{sqlAdapter: base, schema: schema}, nil
	case DialectSQLServer:
		return &SQLServerAdapter{sqlAdapter: base, schema: schema}, nil
	case DialectPostgres:
		return &PostgresAdapter{sqlAdapter: base, schema: schema}, nil
	case DialectSQLite:
		return &SQLiteAdapter{sqlAdapter: base}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "dialect %q", dialect)
	}
}

// sqlAdapter database/sql 公共实现
type sqlAdapter struct {
	db      *sql.DB
	dialect Dialect
}

// ExecuteQuery 执行查询，按列名返回行
func (a *sqlAdapter) ExecuteQuery(ctx context.Context, query string) ([]Row, error) {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "execute query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[strings.ToLower(col)] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Dialect 查询方言
func (a *sqlAdapter) Dialect() Dialect {
	return a.dialect
}

// Ping 检查连接
func (a *sqlAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close 关闭连接
func (a *sqlAdapter) Close() error {
	return a.db.Close()
}

// normalizeValue 驱动返回的 []byte 统一转成 string
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// openDB 打开并检查连接
func openDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s", driver)
	}
	return db, nil
}

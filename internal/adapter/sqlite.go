package adapter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// sqliteMainSchema SQLite 主库名
const sqliteMainSchema = "main"

// SQLiteAdapter SQLite 适配器，只扫描 main 库
type SQLiteAdapter struct {
	sqlAdapter
}

// NewSQLiteAdapter 创建 SQLite 适配器
func NewSQLiteAdapter(ctx context.Context, dsn string) (*SQLiteAdapter, error) {
	db, err := openDB(ctx, "sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// 内存库每个连接是独立的库
	db.SetMaxOpenConns(1)
	return &SQLiteAdapter{sqlAdapter: sqlAdapter{db: db, dialect: DialectSQLite}}, nil
}

// ListDatasets 只有 main
func (a *SQLiteAdapter) ListDatasets(ctx context.Context) ([]string, error) {
	return []string{sqliteMainSchema}, nil
}

// ListTables 列出表
func (a *SQLiteAdapter) ListTables(ctx context.Context, dataset string) ([]TableMetadata, error) {
	names, err := queryStrings(ctx, a.db, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}

	tables := make([]TableMetadata, 0, len(names))
	for _, name := range names {
		t := TableMetadata{Name: name, Type: "TABLE"}
		countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", a.dialect.Table(dataset, name))
		if err := a.db.QueryRowContext(ctx, countQuery).Scan(&t.NumRows); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// GetSchema 获取列
func (a *SQLiteAdapter) GetSchema(ctx context.Context, dataset, table string) ([]ColumnMetadata, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []ColumnMetadata
	for rows.Next() {
		var c ColumnMetadata
		var notNull, pk int
		if err := rows.Scan(&c.Name, &c.DataType, &notNull, &pk); err != nil {
			return nil, err
		}
		c.Nullable = notNull == 0
		c.IsPrimaryKey = pk > 0
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errors.Errorf("table %s not found", table)
	}
	return columns, nil
}

// GetForeignKeys 获取外键约束（逐表 pragma_foreign_key_list）
func (a *SQLiteAdapter) GetForeignKeys(ctx context.Context, dataset string) ([]ForeignKey, error) {
	tables, err := queryStrings(ctx, a.db, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}

	var fks []ForeignKey
	for _, table := range tables {
		rows, err := a.db.QueryContext(ctx, `SELECT "table", "from", "to" FROM pragma_foreign_key_list(?)`, table)
		if err != nil {
			return nil, err
		}

		var pending []ForeignKey
		for rows.Next() {
			var toTable, from string
			var to sql.NullString
			if err := rows.Scan(&toTable, &from, &to); err != nil {
				rows.Close()
				return nil, err
			}
			pending = append(pending, ForeignKey{FromTable: table, FromColumn: from, ToTable: toTable, ToColumn: to.String})
		}
		rows.Close()

		for _, fk := range pending {
			// REFERENCES t 省略列名时指向主键
			if fk.ToColumn == "" {
				pk, err := a.primaryKey(ctx, fk.ToTable)
				if err != nil || pk == "" {
					continue
				}
				fk.ToColumn = pk
			}
			fks = append(fks, fk)
		}
	}
	return fks, nil
}

// primaryKey 第一个主键列
func (a *SQLiteAdapter) primaryKey(ctx context.Context, table string) (string, error) {
	var name string
	err := a.db.QueryRowContext(ctx, `SELECT name FROM pragma_table_info(?) WHERE pk = 1`, table).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return name, err
}

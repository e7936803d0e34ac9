package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"testing"

	"schema-graph/internal/adapter"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// fakeAdapter 内存适配器
type fakeAdapter struct {
	datasets    []string
	tables      map[string][]adapter.TableMetadata
	columns     map[string][]adapter.ColumnMetadata // key: dataset.table
	fks         map[string][]adapter.ForeignKey
	schemaErr   map[string]error
	datasetsErr error
	closed      bool
}

func (f *fakeAdapter) ExecuteQuery(ctx context.Context, query string) ([]adapter.Row, error) {
	return nil, errors.New("not supported")
}

func (f *fakeAdapter) Dialect() adapter.Dialect { return adapter.DialectSQLite }

func (f *fakeAdapter) ListDatasets(ctx context.Context) ([]string, error) {
	return f.datasets, f.datasetsErr
}

func (f *fakeAdapter) ListTables(ctx context.Context, dataset string) ([]adapter.TableMetadata, error) {
	return f.tables[dataset], nil
}

func (f *fakeAdapter) GetSchema(ctx context.Context, dataset, table string) ([]adapter.ColumnMetadata, error) {
	key := dataset + "." + table
	if err := f.schemaErr[key]; err != nil {
		return nil, err
	}
	return f.columns[key], nil
}

func (f *fakeAdapter) GetForeignKeys(ctx context.Context, dataset string) ([]adapter.ForeignKey, error) {
	return f.fks[dataset], nil
}

func (f *fakeAdapter) Ping(ctx context.Context) error { return nil }

func (f *fakeAdapter) Close() error {
	f.closed = true
	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func shopAdapter() *fakeAdapter {
	return &fakeAdapter{
		datasets: []string{"shop"},
		tables: map[string][]adapter.TableMetadata{
			"shop": {
				{Name: "customers", Type: "TABLE", NumRows: 2},
				{Name: "orders", Type: "TABLE", NumRows: 3},
				{Name: "broken", Type: "TABLE"},
			},
		},
		columns: map[string][]adapter.ColumnMetadata{
			"shop.customers": {
				{Name: "id", DataType: "INTEGER", IsPrimaryKey: true},
				{Name: "name", DataType: "TEXT"},
			},
			"shop.orders": {
				{Name: "id", DataType: "INTEGER", IsPrimaryKey: true},
				{Name: "customer_id", DataType: "INTEGER", Nullable: true},
			},
		},
		fks: map[string][]adapter.ForeignKey{
			"shop": {{FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"}},
		},
		schemaErr: map[string]error{"shop.broken": errors.New("permission denied")},
	}
}

func TestServiceScan(t *testing.T) {
	ctx := context.Background()
	svc := NewService(quietLogger())
	require.NoError(t, svc.Register(ctx, DataSource{ID: "src", Type: "fake"}, shopAdapter()))

	before := svc.Snapshot()
	stats, err := svc.Scan(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, ScanStats{Datasets: 1, Tables: 3, Columns: 4}, stats)

	snap := svc.Snapshot()
	assert.NotEqual(t, before.Version, snap.Version)
	assert.Empty(t, before.ListTables("src.shop"), "published snapshots are never mutated")

	tables := snap.ListTables("src.shop")
	require.Len(t, tables, 3)
	assert.Equal(t, "src.shop.broken", tables[0].ID)
	assert.Empty(t, snap.ListColumns("src.shop.broken"))

	cols := snap.ListColumns("src.shop.orders")
	require.Len(t, cols, 2)
	assert.True(t, cols[1].IsForeignKey)
	assert.Equal(t, "src.shop.customers.id", cols[1].ForeignKeyRef)

	tableID, column, ok := SplitRef(cols[1].ForeignKeyRef)
	require.True(t, ok)
	assert.Equal(t, "src.shop.customers", tableID)
	assert.Equal(t, "id", column)
	assert.True(t, snap.HasColumn(tableID, column))
}

func TestServiceScanErrors(t *testing.T) {
	ctx := context.Background()
	svc := NewService(quietLogger())

	_, err := svc.Scan(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Register(ctx, DataSource{ID: "static"}, nil))
	_, err = svc.Scan(ctx, "static")
	assert.ErrorIs(t, err, ErrNoConnector)

	failing := shopAdapter()
	failing.datasetsErr = errors.New("connection reset")
	require.NoError(t, svc.Register(ctx, DataSource{ID: "flaky"}, failing))
	_, err = svc.Scan(ctx, "flaky")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSnapshotLookups(t *testing.T) {
	ctx := context.Background()
	svc := NewService(quietLogger())
	require.NoError(t, svc.Register(ctx, DataSource{ID: "src"}, shopAdapter()))
	_, err := svc.Scan(ctx, "src")
	require.NoError(t, err)

	snap := svc.Snapshot()

	_, err = snap.Table("src.shop.order")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), `did you mean "src.shop.orders"`)

	_, err = snap.Dataset("nothing-like-it")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NotContains(t, err.Error(), "did you mean")

	conn, err := snap.ConnectorForDataset("src.shop")
	require.NoError(t, err)
	assert.NotNil(t, conn)

	require.NoError(t, svc.Import(
		DataSource{ID: "static"},
		[]Dataset{{ID: "static.crm", Name: "crm"}},
		[]Table{{ID: "static.crm.accounts", Name: "accounts", DatasetID: "static.crm"}},
		[]Column{{ID: "static.crm.accounts.id", Name: "id", TableID: "static.crm.accounts"}},
	))
	_, err = svc.Snapshot().ConnectorForDataset("static.crm")
	assert.ErrorIs(t, err, ErrNoConnector)

	counts := svc.Snapshot().Counts()
	assert.Equal(t, 2, counts["datasources"])
	assert.Equal(t, 4, counts["tables"])
	assert.Equal(t, 5, counts["columns"])
}

func TestImportRejectsForeignTables(t *testing.T) {
	svc := NewService(quietLogger())
	require.NoError(t, svc.Import(
		DataSource{ID: "a"},
		[]Dataset{{ID: "a.d", Name: "d"}},
		[]Table{{ID: "a.d.t", Name: "t", DatasetID: "a.d"}},
		nil,
	))
	err := svc.Import(DataSource{ID: "b"}, nil, nil, []Column{{ID: "a.d.t.x", Name: "x", TableID: "a.d.t"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	svc := NewService(quietLogger())
	conn := shopAdapter()
	require.NoError(t, svc.Register(ctx, DataSource{ID: "src"}, conn))
	_, err := svc.Scan(ctx, "src")
	require.NoError(t, err)

	require.NoError(t, svc.Forget("src"))
	assert.True(t, conn.closed)
	assert.Empty(t, svc.Snapshot().ListDatasources())
	assert.False(t, svc.Snapshot().HasTable("src.shop.orders"))
	assert.ErrorIs(t, svc.Forget("src"), ErrNotFound)
}

func TestSuggest(t *testing.T) {
	tests := []struct {
		name       string
		candidates []string
		expected   string
	}{
		{"custmers", []string{"customers", "orders"}, "customers"},
		{"ordrs", []string{"customers", "orders"}, "orders"},
		{"xyz", []string{"customers", "orders"}, ""},
		{"anything", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, suggest(tt.name, tt.candidates))
		})
	}
}

func TestSplitRef(t *testing.T) {
	tests := []struct {
		ref    string
		table  string
		column string
		ok     bool
	}{
		{"src.shop.customers.id", "src.shop.customers", "id", true},
		{"customers.id", "customers", "id", true},
		{"customers", "", "", false},
		{"customers.", "", "", false},
		{".id", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			table, column, ok := SplitRef(tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.table, table)
			assert.Equal(t, tt.column, column)
		})
	}
}

func TestScanSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT);
		CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER REFERENCES customers(id));
	`)
	require.NoError(t, err)

	conn, err := adapter.FromDB(db, adapter.DialectSQLite, "")
	require.NoError(t, err)

	ctx := context.Background()
	svc := NewService(quietLogger())
	require.NoError(t, svc.Register(ctx, DataSource{ID: "lite", Type: "sqlite"}, conn))

	results, err := svc.ScanAll(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, ScanStats{Datasets: 1, Tables: 2, Columns: 4}, results["lite"])

	cols := svc.Snapshot().ListColumns("lite.main.orders")
	require.Len(t, cols, 2)
	assert.Equal(t, "lite.main.customers.id", cols[1].ForeignKeyRef)
}

// 并发扫描与读取：读者只看到完整发布的快照
func TestConcurrentScanAndRead(t *testing.T) {
	ctx := context.Background()
	svc := NewService(quietLogger())
	for i := 0; i < 4; i++ {
		require.NoError(t, svc.Register(ctx, DataSource{ID: fmt.Sprintf("src%d", i)}, shopAdapter()))
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := svc.Scan(ctx, fmt.Sprintf("src%d", i))
				assert.NoError(t, err)
			}
		}(i)
	}

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := svc.Snapshot()
				for _, ds := range snap.ListDatasources() {
					tables := snap.ListTables(DatasetID(ds.ID, "shop"))
					// 一个数据源的表要么全部可见，要么都不可见
					if len(tables) != 0 && len(tables) != 3 {
						t.Errorf("partial scan visible for %s: %d tables", ds.ID, len(tables))
					}
				}
			}
		}()
	}
	wg.Wait()

	counts := svc.Snapshot().Counts()
	assert.Equal(t, 12, counts["tables"])
	assert.Equal(t, 16, counts["columns"])
}

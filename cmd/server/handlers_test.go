package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"schema-graph/internal/adapter"
	"schema-graph/internal/builder"
	"schema-graph/internal/catalog"
	"schema-graph/internal/graph"
	"schema-graph/internal/semantics"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const shopDDL = `
	CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT);
	CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER);
	INSERT INTO customers VALUES (1, 'Acme'), (2, 'Globex');
	INSERT INTO orders VALUES (1, 1), (2, 2), (3, 2);
`

const modelYAML = `
entities:
  customer:
    attributes:
      - {name: id, type: number}
`

const mappingsYAML = `
mappings:
  customer:
    datasource: lite
    dataset: main
    table: customers
    attributes:
      id: id
`

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func openShop(t *testing.T) adapter.DBAdapter {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(shopDDL)
	require.NoError(t, err)

	conn, err := adapter.FromDB(db, adapter.DialectSQLite, "")
	require.NoError(t, err)
	return conn
}

func newTestServer(t *testing.T) (*httptest.Server, *catalog.Service) {
	t.Helper()
	ctx := context.Background()
	svc := catalog.NewService(quietLogger())
	require.NoError(t, svc.Register(ctx, catalog.DataSource{ID: "lite", Type: "sqlite"}, openShop(t)))
	_, err := svc.Scan(ctx, "lite")
	require.NoError(t, err)

	require.NoError(t, svc.Import(
		catalog.DataSource{ID: "static"},
		[]catalog.Dataset{{ID: "static.crm", Name: "crm"}},
		nil, nil,
	))

	model, err := semantics.Parse([]byte(modelYAML), []byte(mappingsYAML))
	require.NoError(t, err)

	a := &api{
		catalog: svc,
		builder: builder.New(svc, model, builder.DefaultConfig(), quietLogger()),
		model:   model,
		opts:    graph.DefaultOptions(),
		open: func(ctx context.Context, ds catalog.DataSource) (adapter.DBAdapter, error) {
			if ds.Type != "sqlite" {
				return nil, adapter.ErrUnsupportedType
			}
			return openShop(t), nil
		},
		logger: quietLogger(),
	}
	srv := httptest.NewServer(newRouter(a))
	t.Cleanup(srv.Close)
	return srv, svc
}

func do(t *testing.T, method, url, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func TestBuildFromDataset(t *testing.T) {
	srv, _ := newTestServer(t)

	status, payload := do(t, http.MethodPost, srv.URL+"/api/graph/build-from-dataset", `{"dataset_id":"lite.main"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, "lite.main", payload["dataset_id"])

	stats := payload["stats"].(map[string]interface{})
	assert.Equal(t, 2.0, stats["tables"])
	assert.Equal(t, 4.0, stats["columns"])
	assert.Equal(t, 1.0, stats["relationships"])
	assert.Len(t, payload["nodes"], 6)
}

func TestBuildFromDatasetRendered(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/graph/build-from-dataset?format=mermaid", "application/json",
		strings.NewReader(`{"dataset_id":"lite.main"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "erDiagram")
	assert.Contains(t, string(body), "customers ||..o{ orders")
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name      string
		method    string
		path      string
		body      string
		status    int
		condition string
	}{
		{"unknown dataset", http.MethodPost, "/api/graph/build-from-dataset", `{"dataset_id":"lite.mian"}`, 404, "not_found"},
		{"no connector", http.MethodPost, "/api/graph/build-from-dataset", `{"dataset_id":"static.crm"}`, 404, "no_connector"},
		{"bad body", http.MethodPost, "/api/graph/build-from-dataset", `{`, 400, "bad_request"},
		{"missing dataset", http.MethodPost, "/api/graph/build-from-dataset", `{}`, 400, "bad_request"},
		{"detect unknown", http.MethodGet, "/api/graph/detect-relationships/nope.main", "", 404, "not_found"},
		{"scan unknown", http.MethodPost, "/api/sources/nope/scan", "", 404, "not_found"},
		{"scan metadata only", http.MethodPost, "/api/sources/static/scan", "", 404, "no_connector"},
		{"unknown entity", http.MethodGet, "/api/graph/entity/supplier", "", 404, "not_found"},
		{"bad depth", http.MethodGet, "/api/graph/entity/customer?depth=x", "", 400, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := do(t, tt.method, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.condition, payload["condition"])
			assert.NotEmpty(t, payload["error"])
		})
	}
}

func TestDetectRelationships(t *testing.T) {
	srv, _ := newTestServer(t)

	status, payload := do(t, http.MethodGet, srv.URL+"/api/graph/detect-relationships/lite.main", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, payload["total_count"])

	rel := payload["relationships"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "lite.main.orders", rel["from_table_id"])
	assert.Equal(t, "customer_id", rel["from_column"])
	assert.Equal(t, "naming_convention", rel["detection_method"])

	// 只检测不需要连接
	status, payload = do(t, http.MethodGet, srv.URL+"/api/graph/detect-relationships/static.crm", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.0, payload["total_count"])
}

func TestPlatformAndEntityGraph(t *testing.T) {
	srv, _ := newTestServer(t)

	status, payload := do(t, http.MethodGet, srv.URL+"/api/graph/full", "")
	require.Equal(t, http.StatusOK, status)
	stats := payload["stats"].(map[string]interface{})
	byType := stats["edges_by_type"].(map[string]interface{})
	assert.Equal(t, 1.0, byType["MAPS_TO_ENTITY"])
	assert.Equal(t, 1.0, byType["MAPS_TO_ATTRIBUTE"])

	status, payload = do(t, http.MethodGet, srv.URL+"/api/graph/entity/customer?depth=1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "customer", payload["entity"])
	// 实体、属性、映射的表
	assert.Len(t, payload["nodes"], 3)
}

func TestConnectAndScanSource(t *testing.T) {
	srv, svc := newTestServer(t)

	status, payload := do(t, http.MethodPost, srv.URL+"/api/sources", `{"id":"lite2","type":"sqlite","dsn":":memory:"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "lite2", payload["id"])

	status, payload = do(t, http.MethodPost, srv.URL+"/api/sources", `{"id":"ora","type":"oracle"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", payload["condition"])

	status, payload = do(t, http.MethodPost, srv.URL+"/api/sources/lite2/scan", "")
	require.Equal(t, http.StatusOK, status)
	scanStats := payload["stats"].(map[string]interface{})
	assert.Equal(t, 2.0, scanStats["tables"])

	assert.Len(t, svc.Snapshot().ListTables("lite2.main"), 2)
}

func TestCatalogRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	get := func(path string) (int, []interface{}) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out []interface{}
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		}
		return resp.StatusCode, out
	}

	status, sources := get("/api/sources")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, sources, 2)

	status, datasets := get("/api/sources/lite/datasets")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, datasets, 1)

	status, tables := get("/api/datasets/lite.main/tables")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, tables, 2)

	status, columns := get("/api/tables/lite.main.orders/columns")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, columns, 2)

	status, _ = get("/api/tables/lite.main.nope/columns")
	assert.Equal(t, http.StatusNotFound, status)

	status, entities := get("/api/semantic/entities")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, entities, 1)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "schema_graph_scans_total")
}

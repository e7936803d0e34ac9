package builder

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"schema-graph/internal/adapter"
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
	CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER, status_code TEXT);
	CREATE TABLE statuses (status_code TEXT PRIMARY KEY, status_name TEXT);
	INSERT INTO customers VALUES (1, 'Acme'), (2, 'Globex'), (3, 'Initech');
	INSERT INTO orders VALUES (1, 1, 'N'), (2, 2, 'N'), (3, 2, 'S');
	INSERT INTO statuses VALUES ('N', 'New'), ('S', 'Shipped');
`

const semanticModel = `
entities:
  customer:
    label: Customer
    attributes:
      - {name: id, type: number}
      - {name: name, type: string}
      - {name: email, type: string}
  order:
    label: Order
    attributes:
      - {name: id, type: number}
relations:
  - name: places
    from_entity: customer
    to_entity: order
    cardinality: "1:N"
`

const semanticMappings = `
mappings:
  customer:
    datasource: lite
    dataset: main
    table: customers
    keys: [id]
    attributes:
      id: id
      name: name
      email: email_address
  order:
    datasource: lite
    dataset: main
    table: purchase_orders
    attributes:
      id: id
`

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newShop(t *testing.T, ddl string, cfg Config) (*Builder, *catalog.Service) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(ddl)
	require.NoError(t, err)

	conn, err := adapter.FromDB(db, adapter.DialectSQLite, "")
	require.NoError(t, err)

	ctx := context.Background()
	svc := catalog.NewService(quietLogger())
	require.NoError(t, svc.Register(ctx, catalog.DataSource{ID: "lite", Type: "sqlite", Name: "Lite"}, conn))
	_, err = svc.Scan(ctx, "lite")
	require.NoError(t, err)

	model, err := semantics.Parse([]byte(semanticModel), []byte(semanticMappings))
	require.NoError(t, err)

	return New(svc, model, cfg, quietLogger()), svc
}

func TestBuildDataGraph(t *testing.T) {
	b, _ := newShop(t, shopDDL, DefaultConfig())

	g, err := b.BuildDataGraph(context.Background(), "lite.main")
	require.NoError(t, err)

	stats := g.Stats()
	assert.Equal(t, 3, stats.Tables)
	assert.Equal(t, 7, stats.Columns)
	assert.Equal(t, 1, stats.Relationships)
	assert.Equal(t, 7, stats.EdgesByType[graph.EdgeHasColumn])

	edges := g.Outgoing("lite.main.orders")
	var related *graph.Edge
	for _, e := range edges {
		if e.Type == graph.EdgeRelatedTo {
			related = e
		}
	}
	require.NotNil(t, related)
	assert.Equal(t, "lite.main.orders.customer_id->lite.main.customers.id", related.ID)
	assert.Equal(t, "lite.main.customers", related.To)
	assert.Equal(t, "customer_id", related.Properties["from_column"])
	assert.Equal(t, "id", related.Properties["to_column"])
	assert.Equal(t, "naming_convention", related.Properties["detection_method"])
	assert.InDelta(t, 1.0, related.Strength, 1e-9)
	assert.NotContains(t, related.Properties, "valid")

	status := g.Node("lite.main.statuses")
	require.NotNil(t, status)
	assert.Equal(t, true, status.Properties["is_lookup"])
	assert.Equal(t, "status_code", status.Properties["lookup_key_column"])

	col := g.Node("lite.main.customers.id")
	require.NotNil(t, col)
	assert.Equal(t, graph.NodeTypeColumn, col.Type)
	assert.Equal(t, true, col.Properties["is_primary_key"])
}

func TestBuildDataGraphErrors(t *testing.T) {
	b, svc := newShop(t, shopDDL, DefaultConfig())
	ctx := context.Background()

	_, err := b.BuildDataGraph(ctx, "lite.mian")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	require.NoError(t, svc.Import(
		catalog.DataSource{ID: "static"},
		[]catalog.Dataset{{ID: "static.crm", Name: "crm"}},
		nil, nil,
	))
	_, err = b.BuildDataGraph(ctx, "static.crm")
	assert.ErrorIs(t, err, catalog.ErrNoConnector)

	// 只检测不需要连接
	rels, err := b.DetectRelationships(ctx, "static.crm")
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestBuildDataGraphWithValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Validate = true
	b, _ := newShop(t, shopDDL, cfg)

	g, err := b.BuildDataGraph(context.Background(), "lite.main")
	require.NoError(t, err)

	var related *graph.Edge
	for _, e := range g.Edges() {
		if e.Type == graph.EdgeRelatedTo {
			related = e
		}
	}
	require.NotNil(t, related)
	assert.Equal(t, true, related.Properties["valid"])
	assert.InDelta(t, 2.0/3.0, related.Properties["overlap_ratio"], 1e-9)
	assert.Equal(t, "1:N", related.Properties["cardinality"])
}

func TestBuildDataGraphDropsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Validate = true
	cfg.DropInvalid = true
	b, _ := newShop(t, `
		CREATE TABLE customers (id INTEGER PRIMARY KEY);
		CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER);
		INSERT INTO customers VALUES (1), (2), (3);
		INSERT INTO orders VALUES (1, 100), (2, 101);
	`, cfg)

	g, err := b.BuildDataGraph(context.Background(), "lite.main")
	require.NoError(t, err)
	assert.Equal(t, 0, g.Stats().Relationships)

	validated, err := b.ValidateRelationships(context.Background(), "lite.main")
	require.NoError(t, err)
	require.Len(t, validated, 1)
	assert.False(t, validated[0].Validation.Valid)
	assert.Equal(t, 0.0, validated[0].Validation.OverlapRatio)
}

func TestProfileColumn(t *testing.T) {
	b, _ := newShop(t, shopDDL, DefaultConfig())
	ctx := context.Background()

	p, err := b.ProfileColumn(ctx, "lite.main.customers", "id")
	require.NoError(t, err)
	assert.True(t, p.IsLikelyKey)
	assert.Equal(t, int64(3), p.TotalCount)

	_, err = b.ProfileColumn(ctx, "lite.main.customers", "nope")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestBuildPlatformGraph(t *testing.T) {
	b, _ := newShop(t, shopDDL, DefaultConfig())

	g, err := b.BuildPlatformGraph(context.Background())
	require.NoError(t, err)

	stats := g.Stats()
	assert.Equal(t, 1, stats.NodesByType[graph.NodeTypeDatasource])
	assert.Equal(t, 1, stats.NodesByType[graph.NodeTypeDataset])
	assert.Equal(t, 2, stats.NodesByType[graph.NodeTypeEntity])
	assert.Equal(t, 4, stats.NodesByType[graph.NodeTypeAttribute])
	assert.Equal(t, 1, stats.EdgesByType[graph.EdgeHasDataset])
	assert.Equal(t, 3, stats.EdgesByType[graph.EdgeHasTable])
	assert.Equal(t, 4, stats.EdgesByType[graph.EdgeHasAttribute])
	assert.Equal(t, 1, stats.EdgesByType[graph.EdgeEntityRelation])

	// purchase_orders 不在目录中，email_address 列不存在
	assert.Equal(t, 1, stats.EdgesByType[graph.EdgeMapsToEntity])
	assert.Equal(t, 2, stats.EdgesByType[graph.EdgeMapsToAttribute])
	assert.Equal(t, []string{"entity:customer"}, g.Neighbors("lite.main.customers", graph.EdgeMapsToEntity))
	assert.Equal(t, []string{"entity:customer.name"}, g.Neighbors("lite.main.customers.name", graph.EdgeMapsToAttribute))

	src := g.Node("lite")
	require.NotNil(t, src)
	assert.NotContains(t, src.Properties, "dsn")
}

func TestBuildEntityGraph(t *testing.T) {
	b, _ := newShop(t, shopDDL, DefaultConfig())
	ctx := context.Background()

	g, err := b.BuildEntityGraph(ctx, "customer", 1)
	require.NoError(t, err)

	stats := g.Stats()
	assert.Equal(t, 6, stats.TotalNodes)
	assert.Equal(t, 5, stats.TotalEdges)
	assert.NotNil(t, g.Node("entity:order"))
	assert.NotNil(t, g.Node("lite.main.customers"))
	assert.Nil(t, g.Node("lite.main.customers.id"))

	_, err = b.BuildEntityGraph(ctx, "supplier", 1)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestBuildCustomerGraph(t *testing.T) {
	b := New(catalog.NewService(quietLogger()), nil, DefaultConfig(), quietLogger())
	now := time.Now()

	g := b.BuildCustomerGraph(CustomerRecords{
		Customer: Customer{ID: "CUST-1", Name: "Acme", CreatedAt: now.AddDate(-1, 0, 0)},
		Invoices: []Invoice{
			{ID: "INV-1", Status: "paid"},
			{ID: "INV-2", Status: "overdue"},
		},
		Contacts: []Contact{{ID: "CON-1", Name: "Ada", Role: "cto"}},
		Interactions: []Interaction{
			{ID: "INT-1", Sentiment: "positive", CreatedAt: now.Add(-24 * time.Hour)},
			{ID: "INT-2", Sentiment: "negative", CreatedAt: now.AddDate(0, -3, 0)},
			{ID: "INT-3", Sentiment: "confused"},
		},
	})

	assert.Equal(t, 7, g.Stats().TotalNodes)
	assert.Equal(t, 12, g.Stats().TotalEdges)

	strengths := map[string]float64{
		"INV-1": 1.0, "INV-2": 0.5, "CON-1": 0.8,
		"INT-1": 1.0, "INT-2": 0.4, "INT-3": 0.5,
	}
	for id, want := range strengths {
		assert.InDelta(t, want, g.RelationshipStrength("CUST-1", id), 1e-9, id)
		assert.InDelta(t, want, g.RelationshipStrength(id, "CUST-1"), 1e-9, id)
	}

	var types []string
	var recent []string
	for _, in := range g.Insights("CUST-1") {
		types = append(types, in.Type)
		if in.Type == "recent_activity" {
			recent = in.Entities
		}
	}
	assert.Equal(t, []string{"connected_entities", "strong_relationships", "recent_activity"}, types)
	assert.Equal(t, []string{"INT-1"}, recent)
}

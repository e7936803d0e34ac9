package renderer

import (
	"strings"
	"testing"

	"schema-graph/internal/graph"

	"github.com/stretchr/testify/assert"
)

func shopGraph() *graph.Graph {
	g := graph.New()

	addTable := func(id, name string, props map[string]interface{}) {
		if props == nil {
			props = map[string]interface{}{}
		}
		g.AddNode(graph.NewNode(id, graph.NodeTypeTable, name, props))
	}
	addColumn := func(tableID, name, datatype string, pk, fk bool) {
		id := tableID + "." + name
		g.AddNode(graph.NewNode(id, graph.NodeTypeColumn, name, map[string]interface{}{
			"datatype":       datatype,
			"is_nullable":    !pk,
			"is_primary_key": pk,
			"is_foreign_key": fk,
		}))
		g.AddEdge(graph.NewEdge(tableID+"->"+id, tableID, id, graph.EdgeHasColumn, nil), false)
	}

	addTable("db.shop.users", "users", nil)
	addColumn("db.shop.users", "id", "int", true, false)
	addColumn("db.shop.users", "email", "varchar(255)", false, false)

	addTable("db.shop.orders", "orders", nil)
	addColumn("db.shop.orders", "id", "int", true, false)
	addColumn("db.shop.orders", "user_id", "int", false, false)
	addColumn("db.shop.orders", "status_code", "char(1)", false, true)

	addTable("db.shop.statuses", "statuses", map[string]interface{}{
		"is_lookup":         true,
		"lookup_key_column": "status_code",
	})
	addColumn("db.shop.statuses", "status_code", "char(1)", true, false)

	g.AddEdge(graph.NewEdge("r1", "db.shop.orders", "db.shop.users", graph.EdgeRelatedTo, map[string]interface{}{
		"from_column":      "user_id",
		"to_column":        "id",
		"confidence":       1.0,
		"detection_method": "naming_convention",
		"valid":            true,
		"overlap_ratio":    0.5,
		"cardinality":      "1:N",
	}).WithStrength(1.0), false)
	g.AddEdge(graph.NewEdge("r2", "db.shop.orders", "db.shop.statuses", graph.EdgeRelatedTo, map[string]interface{}{
		"from_column":      "status_code",
		"to_column":        "status_code",
		"confidence":       1.0,
		"detection_method": "explicit_fk",
	}), false)
	return g
}

func TestMarkdownRenderer(t *testing.T) {
	out := NewMarkdownRenderer().Render(shopGraph())

	assert.True(t, strings.HasPrefix(out, "# 数据库结构文档\n"))
	assert.Contains(t, out, "共 3 个表，6 个列，2 个关系")
	assert.Contains(t, out, "| user_id | int | 是 |  |  |  |")
	assert.Contains(t, out, "| id | int | 否 | ✓ |  |  |")
	assert.Contains(t, out, "> 码表，键列 `status_code`")
	assert.Contains(t, out, "- **推断外键** `orders.user_id` → `users.id` (置信度: 1.00)")
	assert.Contains(t, out, "- **外键** `orders.status_code` → `statuses.status_code` (置信度: 1.00)")
	assert.Contains(t, out, "  - 采样验证: 通过，重叠度 50.0%，基数 1:N")

	// 按表 ID 排序
	orders := strings.Index(out, "### orders")
	statuses := strings.Index(out, "### statuses")
	users := strings.Index(out, "### users")
	assert.True(t, orders < statuses && statuses < users)

	// 列保持添加顺序
	assert.Less(t, strings.Index(out, "| id | int | 否"), strings.Index(out, "| user_id |"))
}

func TestMarkdownRendererEmpty(t *testing.T) {
	out := NewMarkdownRenderer().Render(graph.New())
	assert.Contains(t, out, "共 0 个表，0 个列，0 个关系")
	assert.NotContains(t, out, "###")
}

func TestMermaidRenderer(t *testing.T) {
	out := NewMermaidRenderer().Render(shopGraph())

	assert.True(t, strings.HasPrefix(out, "erDiagram\n"))
	assert.Contains(t, out, "    orders {\n        int id PK\n        int user_id\n        char_1_ status_code FK\n    }\n")
	assert.Contains(t, out, "        varchar_255_ email\n")
	assert.Contains(t, out, "    users ||..o{ orders : \"user_id 1.00\"\n")
	assert.Contains(t, out, "    statuses ||--o{ orders : \"status_code 1.00\"\n")
}

func TestIdent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"orders", "orders"},
		{"order items", "order_items"},
		{"decimal(10,2)", "decimal_10_2_"},
		{"", "_"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ident(tt.in))
		})
	}
}

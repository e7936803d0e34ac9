package renderer

import (
	"fmt"
	"sort"
	"strings"

	"schema-graph/internal/graph"
)

// MarkdownRenderer Markdown 数据字典渲染器
type MarkdownRenderer struct{}

// NewMarkdownRenderer 创建渲染器
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// Render 渲染为 Markdown 格式
func (m *MarkdownRenderer) Render(g *graph.Graph) string {
	var sb strings.Builder

	sb.WriteString("# 数据库结构文档\n\n")
	stats := g.Stats()
	sb.WriteString(fmt.Sprintf("共 %d 个表，%d 个列，%d 个关系\n\n", stats.Tables, stats.Columns, stats.Relationships))
	sb.WriteString("## 表结构\n\n")

	for _, table := range tableNodes(g) {
		sb.WriteString(fmt.Sprintf("### %s\n\n", table.Label))
		if boolProp(table.Properties, "is_lookup") {
			sb.WriteString(fmt.Sprintf("> 码表，键列 `%s`\n\n", stringProp(table.Properties, "lookup_key_column")))
		}

		// 表头
		sb.WriteString("| 列名 | 类型 | 可空 | 主键 | 外键 | 说明 |\n")
		sb.WriteString("|------|------|------|------|------|------|\n")

		for _, col := range columnNodes(g, table.ID) {
			props := col.Properties
			nullable := "否"
			if boolProp(props, "is_nullable") {
				nullable = "是"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
				col.Label,
				stringProp(props, "datatype"),
				nullable,
				check(boolProp(props, "is_primary_key")),
				check(boolProp(props, "is_foreign_key")),
				stringProp(props, "description"),
			))
		}
		sb.WriteString("\n")

		m.renderTableRelations(&sb, g, table.ID)
	}

	return sb.String()
}

// renderTableRelations 渲染表关系
func (m *MarkdownRenderer) renderTableRelations(sb *strings.Builder, g *graph.Graph, tableID string) {
	var relations []*graph.Edge
	for _, e := range g.AllEdges(tableID) {
		if e.Type == graph.EdgeRelatedTo {
			relations = append(relations, e)
		}
	}
	if len(relations) == 0 {
		return
	}

	sb.WriteString("#### 关系\n\n")
	for _, rel := range relations {
		props := rel.Properties

		relType := "外键"
		if stringProp(props, "detection_method") == "naming_convention" {
			relType = "推断外键"
		}

		sb.WriteString(fmt.Sprintf("- **%s** `%s.%s` → `%s.%s` (置信度: %.2f)\n",
			relType,
			label(g, rel.From), stringProp(props, "from_column"),
			label(g, rel.To), stringProp(props, "to_column"),
			floatProp(props, "confidence"),
		))

		// 采样验证结果
		if v, ok := props["valid"].(bool); ok {
			verdict := "通过"
			if !v {
				verdict = "未通过"
			}
			sb.WriteString(fmt.Sprintf("  - 采样验证: %s，重叠度 %.1f%%", verdict, floatProp(props, "overlap_ratio")*100))
			if c := stringProp(props, "cardinality"); c != "" {
				sb.WriteString(fmt.Sprintf("，基数 %s", c))
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
}

// tableNodes 表节点，按 ID 排序
func tableNodes(g *graph.Graph) []*graph.Node {
	var out []*graph.Node
	for _, n := range g.Nodes() {
		if n.Type == graph.NodeTypeTable {
			out = append(out, n)
		}
	}
	return out
}

// columnNodes 表的列，保持添加顺序
func columnNodes(g *graph.Graph, tableID string) []*graph.Node {
	var out []*graph.Node
	for _, e := range g.Outgoing(tableID) {
		if e.Type != graph.EdgeHasColumn {
			continue
		}
		if n := g.Node(e.To); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func label(g *graph.Graph, id string) string {
	if n := g.Node(id); n != nil {
		return n.Label
	}
	return id
}

func check(b bool) string {
	if b {
		return "✓"
	}
	return ""
}

func stringProp(props map[string]interface{}, key string) string {
	s, _ := props[key].(string)
	return s
}

func boolProp(props map[string]interface{}, key string) bool {
	b, _ := props[key].(bool)
	return b
}

func floatProp(props map[string]interface{}, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// sortedKeys map 键排序
func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package renderer

import (
	"fmt"
	"regexp"
	"strings"

	"schema-graph/internal/graph"
)

// MermaidRenderer Mermaid ER 图渲染器
type MermaidRenderer struct{}

// NewMermaidRenderer 创建渲染器
func NewMermaidRenderer() *MermaidRenderer {
	return &MermaidRenderer{}
}

// mermaid 标识符只允许字母、数字、下划线和连字符
var unsafeIdent = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func ident(s string) string {
	s = unsafeIdent.ReplaceAllString(s, "_")
	if s == "" {
		return "_"
	}
	return s
}

// Render 渲染为 Mermaid 格式
func (m *MermaidRenderer) Render(g *graph.Graph) string {
	var sb strings.Builder

	sb.WriteString("erDiagram\n")

	// 渲染表节点
	tables := make(map[string][]string)
	for _, table := range tableNodes(g) {
		name := ident(table.Label)
		tables[name] = nil
		for _, col := range columnNodes(g, table.ID) {
			props := col.Properties
			dataType := ident(stringProp(props, "datatype"))

			var keys []string
			if boolProp(props, "is_primary_key") {
				keys = append(keys, "PK")
			}
			if boolProp(props, "is_foreign_key") {
				keys = append(keys, "FK")
			}
			colDef := fmt.Sprintf("        %s %s", dataType, ident(col.Label))
			if len(keys) > 0 {
				colDef += " " + strings.Join(keys, ",")
			}
			tables[name] = append(tables[name], colDef)
		}
	}

	// 输出表定义
	for _, name := range sortedKeys(tables) {
		sb.WriteString(fmt.Sprintf("    %s {\n", name))
		for _, col := range tables[name] {
			sb.WriteString(col + "\n")
		}
		sb.WriteString("    }\n")
	}

	sb.WriteString("\n")

	// 渲染关系
	for _, edge := range g.Edges() {
		if edge.Type != graph.EdgeRelatedTo {
			continue
		}
		props := edge.Properties

		relType := "||--o{"
		if stringProp(props, "detection_method") == "naming_convention" {
			relType = "||..o{" // 虚线表示推断关系
		}

		caption := fmt.Sprintf("\"%s %.2f\"", stringProp(props, "from_column"), floatProp(props, "confidence"))
		sb.WriteString(fmt.Sprintf("    %s %s %s : %s\n",
			ident(label(g, edge.To)), relType, ident(label(g, edge.From)), caption))
	}

	return sb.String()
}

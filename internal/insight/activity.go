// Package insight 领域洞察规则，注册到图引擎上使用
package insight

import (
	"fmt"
	"time"

	"schema-graph/internal/graph"
)

// RecentActivity 统计时间窗口内的交互边
//
// 只看节点的出边中指定关系类型的边，边属性 TimestampProperty 为
// time.Time 或 RFC3339 字符串；无法解析的时间跳过。
type RecentActivity struct {
	Type              graph.NodeType
	Relation          graph.EdgeType
	TimestampProperty string
	Window            time.Duration
}

// NewRecentActivity 创建规则，windowDays <= 0 时使用 30 天
func NewRecentActivity(nodeType graph.NodeType, relation graph.EdgeType, windowDays int) *RecentActivity {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &RecentActivity{
		Type:              nodeType,
		Relation:          relation,
		TimestampProperty: "created_at",
		Window:            time.Duration(windowDays) * 24 * time.Hour,
	}
}

// NodeType 适用的节点类型
func (r *RecentActivity) NodeType() graph.NodeType {
	return r.Type
}

// Evaluate 计算洞察
func (r *RecentActivity) Evaluate(g *graph.Graph, node *graph.Node, now time.Time) *graph.Insight {
	var recent []string
	for _, e := range g.Outgoing(node.ID) {
		if e.Type != r.Relation {
			continue
		}
		ts, ok := timestamp(e.Properties[r.TimestampProperty])
		if !ok {
			continue
		}
		if age := now.Sub(ts); age >= 0 && age <= r.Window {
			recent = append(recent, e.To)
		}
	}
	if len(recent) == 0 {
		return nil
	}

	days := int(r.Window / (24 * time.Hour))
	return &graph.Insight{
		Type:        "recent_activity",
		Description: fmt.Sprintf("%d interactions in last %d days", len(recent), days),
		Entities:    recent,
		Confidence:  0.95,
		Metadata:    map[string]interface{}{"period_days": days},
	}
}

func timestamp(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

package graph

import (
	"fmt"
	"time"
)

// Insight 节点邻域的摘要
type Insight struct {
	Type        string                 `json:"insight_type"`
	Description string                 `json:"description"`
	Entities    []string               `json:"entities"`
	Confidence  float64                `json:"confidence"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// InsightRule 按节点类型注册的洞察规则
type InsightRule interface {
	// NodeType 规则适用的节点类型
	NodeType() NodeType

	// Evaluate 计算洞察，没有可报告的内容时返回 nil
	Evaluate(g *Graph, node *Node, now time.Time) *Insight
}

// RegisterInsightRule 注册洞察规则
func (g *Graph) RegisterInsightRule(rule InsightRule) {
	g.rules[rule.NodeType()] = append(g.rules[rule.NodeType()], rule)
}

// Insights 节点的洞察：相连实体、强关系，以及该节点类型注册的规则
func (g *Graph) Insights(id string) []Insight {
	node := g.Node(id)
	if node == nil {
		return nil
	}

	var insights []Insight

	// 1. 一跳相连的实体，按类型计数
	related := g.RelatedEntities(id, "", "", 1)
	if len(related) > 0 {
		counts := make(map[string]int)
		ids := make([]string, 0, len(related))
		for _, n := range related {
			counts[string(n.Type)]++
			ids = append(ids, n.ID)
		}
		insights = append(insights, Insight{
			Type:        "connected_entities",
			Description: fmt.Sprintf("Connected to %d entities", len(related)),
			Entities:    ids,
			Confidence:  1.0,
			Metadata:    map[string]interface{}{"counts": counts},
		})
	}

	// 2. 强关系
	threshold := g.opts.StrongThreshold
	var strong []string
	for _, e := range g.AllEdges(id) {
		if e.Strength >= threshold {
			strong = append(strong, e.other(id))
		}
	}
	if len(strong) > 0 {
		insights = append(insights, Insight{
			Type:        "strong_relationships",
			Description: fmt.Sprintf("Has %d strong relationships", len(strong)),
			Entities:    strong,
			Confidence:  0.9,
			Metadata:    map[string]interface{}{"threshold": threshold},
		})
	}

	// 3. 领域规则
	now := g.now()
	for _, rule := range g.rules[node.Type] {
		if in := rule.Evaluate(g, node, now); in != nil {
			insights = append(insights, *in)
		}
	}
	return insights
}

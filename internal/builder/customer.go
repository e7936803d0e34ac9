package builder

import (
	"time"

	"schema-graph/internal/graph"
	"schema-graph/internal/insight"
)

// 客户领域的节点和关系类型
const (
	NodeTypeCustomer    graph.NodeType = "customer"
	NodeTypeInvoice     graph.NodeType = "invoice"
	NodeTypeContact     graph.NodeType = "contact"
	NodeTypeInteraction graph.NodeType = "interaction"

	EdgeCustomerInvoice     graph.EdgeType = "customer_invoice"
	EdgeCustomerContact     graph.EdgeType = "customer_contact"
	EdgeCustomerInteraction graph.EdgeType = "customer_interaction"
)

// Customer 客户
type Customer struct {
	ID        string    `json:"customer_id"`
	Name      string    `json:"customer_name"`
	Status    string    `json:"status"`
	MRR       float64   `json:"mrr"`
	Industry  string    `json:"industry"`
	Country   string    `json:"country"`
	CreatedAt time.Time `json:"created_at"`
}

// Invoice 发票
type Invoice struct {
	ID        string    `json:"invoice_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Contact 联系人
type Contact struct {
	ID        string    `json:"contact_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Interaction 客户交互
type Interaction struct {
	ID        string    `json:"interaction_id"`
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	Sentiment string    `json:"sentiment"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomerRecords 一个客户及其关联记录
type CustomerRecords struct {
	Customer     Customer      `json:"customer"`
	Invoices     []Invoice     `json:"invoices"`
	Contacts     []Contact     `json:"contacts"`
	Interactions []Interaction `json:"interactions"`
}

// sentimentStrength 交互情绪对应的关系强度，未知情绪为 0.5
var sentimentStrength = map[string]float64{
	"positive": 1.0,
	"neutral":  0.7,
	"negative": 0.4,
}

// BuildCustomerGraph 客户图，所有关系双向，并注册近期活跃度洞察
func (b *Builder) BuildCustomerGraph(records CustomerRecords) *graph.Graph {
	g := graph.NewWithOptions(b.cfg.Graph)
	g.RegisterInsightRule(insight.NewRecentActivity(NodeTypeCustomer, EdgeCustomerInteraction, b.cfg.Graph.ActivityWindowDays))

	c := records.Customer
	g.AddNode(withCreated(graph.NewNode(c.ID, NodeTypeCustomer, c.Name, map[string]interface{}{
		"name":     c.Name,
		"status":   c.Status,
		"mrr":      c.MRR,
		"industry": c.Industry,
		"country":  c.Country,
	}), c.CreatedAt))

	for _, inv := range records.Invoices {
		g.AddNode(withCreated(graph.NewNode(inv.ID, NodeTypeInvoice, inv.ID, map[string]interface{}{
			"amount":   inv.Amount,
			"currency": inv.Currency,
			"status":   inv.Status,
		}), inv.CreatedAt))

		strength := 0.5
		if inv.Status == "paid" {
			strength = 1.0
		}
		g.AddEdge(graph.NewEdge("", c.ID, inv.ID, EdgeCustomerInvoice, map[string]interface{}{
			"status": inv.Status,
		}).WithStrength(strength), true)
	}

	for _, ct := range records.Contacts {
		g.AddNode(withCreated(graph.NewNode(ct.ID, NodeTypeContact, ct.Name, map[string]interface{}{
			"name":  ct.Name,
			"email": ct.Email,
			"role":  ct.Role,
		}), ct.CreatedAt))

		g.AddEdge(graph.NewEdge("", c.ID, ct.ID, EdgeCustomerContact, map[string]interface{}{
			"role": ct.Role,
		}).WithStrength(0.8), true)
	}

	for _, in := range records.Interactions {
		g.AddNode(withCreated(graph.NewNode(in.ID, NodeTypeInteraction, in.Type, map[string]interface{}{
			"type":      in.Type,
			"channel":   in.Channel,
			"sentiment": in.Sentiment,
		}), in.CreatedAt))

		strength, ok := sentimentStrength[in.Sentiment]
		if !ok {
			strength = 0.5
		}
		props := map[string]interface{}{"sentiment": in.Sentiment}
		if !in.CreatedAt.IsZero() {
			props["created_at"] = in.CreatedAt.Format(time.RFC3339)
		}
		g.AddEdge(graph.NewEdge("", c.ID, in.ID, EdgeCustomerInteraction, props).WithStrength(strength), true)
	}

	recordGraph(g)
	return g
}

func withCreated(n *graph.Node, t time.Time) *graph.Node {
	if !t.IsZero() {
		n.CreatedAt = &t
	}
	return n
}

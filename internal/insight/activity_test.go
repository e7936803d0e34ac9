package insight

import (
	"testing"
	"time"

	"schema-graph/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecentActivity(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

	g := graph.New()
	g.SetClock(func() time.Time { return now })
	g.RegisterInsightRule(NewRecentActivity("customer", "customer_interaction", 30))

	g.AddNode(graph.NewNode("c1", "customer", "Acme", nil))
	for _, id := range []string{"x1", "x2", "x3", "x4", "x5"} {
		g.AddNode(graph.NewNode(id, "interaction", id, nil))
	}

	add := func(to string, created interface{}) {
		g.AddEdge(graph.NewEdge("", "c1", to, "customer_interaction", map[string]interface{}{"created_at": created}), true)
	}
	add("x1", now.Add(-2*24*time.Hour))
	add("x2", now.Add(-29*24*time.Hour).Format(time.RFC3339))
	add("x3", now.Add(-45*24*time.Hour).Format(time.RFC3339))
	add("x4", "yesterday")
	add("x5", nil)

	var recent *graph.Insight
	for _, in := range g.Insights("c1") {
		if in.Type == "recent_activity" {
			in := in
			recent = &in
		}
	}
	require.NotNil(t, recent)
	assert.Equal(t, []string{"x1", "x2"}, recent.Entities)
	assert.Equal(t, 0.95, recent.Confidence)
	assert.Equal(t, 30, recent.Metadata["period_days"])
	assert.Equal(t, "2 interactions in last 30 days", recent.Description)
}

func TestRecentActivityIgnoresOtherTypes(t *testing.T) {
	now := time.Now()
	g := graph.New()
	g.SetClock(func() time.Time { return now })
	g.RegisterInsightRule(NewRecentActivity("customer", "customer_interaction", 0))

	g.AddNode(graph.NewNode("inv", "invoice", "inv", nil))
	g.AddNode(graph.NewNode("x1", "interaction", "x1", nil))
	g.AddEdge(graph.NewEdge("", "inv", "x1", "customer_interaction", map[string]interface{}{"created_at": now}), false)

	for _, in := range g.Insights("inv") {
		assert.NotEqual(t, "recent_activity", in.Type)
	}

	rule := NewRecentActivity("customer", "customer_interaction", 0)
	assert.Equal(t, 30*24*time.Hour, rule.Window)
	assert.Nil(t, rule.Evaluate(g, g.Node("x1"), now))
}

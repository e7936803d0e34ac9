package graph

import (
	"encoding/json"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

// Graph 内存中的有向带权属性图
//
// 不加锁：每个请求构建自己的实例，不在请求间共享。
type Graph struct {
	nodes map[string]*Node
	out   map[string][]*Edge // from -> edges
	in    map[string][]*Edge // to -> edges
	edges []*Edge

	opts  Options
	rules map[NodeType][]InsightRule
	now   func() time.Time
}

// New 创建图
func New() *Graph {
	return NewWithOptions(DefaultOptions())
}

// NewWithOptions 使用指定参数创建图
func NewWithOptions(opts Options) *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		out:   make(map[string][]*Edge),
		in:    make(map[string][]*Edge),
		opts:  opts,
		rules: make(map[NodeType][]InsightRule),
		now:   time.Now,
	}
}

// Options 图参数
func (g *Graph) Options() Options {
	return g.opts
}

// SetClock 替换时钟（洞察规则按它计算时间窗口）
func (g *Graph) SetClock(now func() time.Time) {
	g.now = now
}

// AddNode 添加节点，相同 ID 覆盖
func (g *Graph) AddNode(node *Node) {
	g.nodes[node.ID] = node
}

// AddEdge 添加边，bidirectional 时同时添加端点互换的镜像边
func (g *Graph) AddEdge(edge *Edge, bidirectional bool) {
	edge.Strength = clampStrength(edge.Strength)
	if edge.ID == "" {
		edge.ID = edge.From + "-" + string(edge.Type) + "->" + edge.To
	}
	if edge.Properties == nil {
		edge.Properties = make(map[string]interface{})
	}
	g.insert(edge)

	if bidirectional {
		g.insert(edge.reverse())
	}
}

func (g *Graph) insert(e *Edge) {
	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)
	g.edges = append(g.edges, e)
}

// Node 按 ID 取节点，不存在返回 nil
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// HasNode 节点是否存在
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Outgoing 从节点出发的边
func (g *Graph) Outgoing(id string) []*Edge {
	return g.out[id]
}

// Incoming 指向节点的边
func (g *Graph) Incoming(id string) []*Edge {
	return g.in[id]
}

// AllEdges 节点的出边和入边
func (g *Graph) AllEdges(id string) []*Edge {
	out := g.out[id]
	in := g.in[id]
	all := make([]*Edge, 0, len(out)+len(in))
	all = append(all, out...)
	return append(all, in...)
}

// Neighbors 相邻节点 ID（去重，按 ID 排序），relation 为空时不过滤
func (g *Graph) Neighbors(id string, relation EdgeType) []string {
	set := g.neighborSet(id, relation)
	out := set.ToSlice()
	sort.Strings(out)
	return out
}

func (g *Graph) neighborSet(id string, relation EdgeType) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, e := range g.AllEdges(id) {
		if relation != "" && e.Type != relation {
			continue
		}
		set.Add(e.other(id))
	}
	return set
}

// Nodes 所有节点，按 ID 排序
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges 所有边，按插入顺序
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Stats 图统计
type Stats struct {
	TotalNodes    int              `json:"total_nodes"`
	TotalEdges    int              `json:"total_edges"`
	Tables        int              `json:"tables"`
	Columns       int              `json:"columns"`
	Relationships int              `json:"relationships"`
	NodesByType   map[NodeType]int `json:"nodes_by_type"`
	EdgesByType   map[EdgeType]int `json:"edges_by_type"`
}

// Stats 节点/边数量统计
func (g *Graph) Stats() Stats {
	s := Stats{
		TotalNodes:  len(g.nodes),
		TotalEdges:  len(g.edges),
		NodesByType: make(map[NodeType]int),
		EdgesByType: make(map[EdgeType]int),
	}
	for _, n := range g.nodes {
		s.NodesByType[n.Type]++
	}
	for _, e := range g.edges {
		s.EdgesByType[e.Type]++
	}
	s.Tables = s.NodesByType[NodeTypeTable]
	s.Columns = s.NodesByType[NodeTypeColumn]
	s.Relationships = s.EdgesByType[EdgeRelatedTo]
	return s
}

// Subgraph 节点子集及其之间的边，组成新图
func (g *Graph) Subgraph(ids []string) *Graph {
	sub := NewWithOptions(g.opts)
	sub.now = g.now
	for t, rules := range g.rules {
		sub.rules[t] = append([]InsightRule(nil), rules...)
	}

	keep := mapset.NewThreadUnsafeSet[string](ids...)
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok {
			sub.AddNode(n)
		}
	}
	for _, e := range g.edges {
		if keep.Contains(e.From) && keep.Contains(e.To) {
			sub.insert(e)
		}
	}
	return sub
}

// document JSON 结构
type document struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
	Stats *Stats  `json:"stats,omitempty"`
}

// ToJSON 导出为JSON
func (g *Graph) ToJSON() ([]byte, error) {
	stats := g.Stats()
	return json.MarshalIndent(document{Nodes: g.Nodes(), Edges: g.Edges(), Stats: &stats}, "", "  ")
}

// FromJSON 从 ToJSON 的输出恢复图，镜像边已在边列表中，按单向添加
func FromJSON(data []byte, opts Options) (*Graph, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode graph")
	}
	g := NewWithOptions(opts)
	for _, n := range doc.Nodes {
		g.AddNode(n)
	}
	for _, e := range doc.Edges {
		g.AddEdge(e, false)
	}
	return g, nil
}

package graph

// Path 两节点之间的路径
type Path struct {
	Start         string   `json:"start_node"`
	End           string   `json:"end_node"`
	Nodes         []string `json:"nodes"`
	Edges         []*Edge  `json:"edges"`
	TotalStrength float64  `json:"total_strength"` // 各边强度之积
}

// RelatedEntities 广度优先遍历 maxDepth 跳内的节点
//
// 不包含起点；按发现顺序返回，同一层按 ID 排序；
// nodeType / relation 为空时不过滤。起点不存在时返回 nil。
func (g *Graph) RelatedEntities(id string, nodeType NodeType, relation EdgeType, maxDepth int) []*Node {
	if !g.HasNode(id) {
		return nil
	}

	type item struct {
		id    string
		depth int
	}
	visited := map[string]bool{id: true}
	queue := []item{{id, 0}}
	var related []*Node

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.id != id {
			if n := g.nodes[cur.id]; n != nil && (nodeType == "" || n.Type == nodeType) {
				related = append(related, n)
			}
		}

		if cur.depth >= maxDepth {
			continue
		}
		for _, next := range g.Neighbors(cur.id, relation) {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, item{next, cur.depth + 1})
		}
	}
	return related
}

// RelationshipStrength 两节点的关系强度，结果在 [0,1]
//
// 有直接边 a->b 时取最大强度；否则按共同邻居数计算间接强度，上限低于直接关系。
func (g *Graph) RelationshipStrength(a, b string) float64 {
	direct := -1.0
	for _, e := range g.out[a] {
		if e.To == b && e.Strength > direct {
			direct = e.Strength
		}
	}
	if direct >= 0 {
		return clampStrength(direct)
	}

	shared := g.neighborSet(a, "").Intersect(g.neighborSet(b, "")).Cardinality()
	if shared == 0 || g.opts.IndirectDivisor <= 0 {
		return 0
	}
	s := float64(shared) / g.opts.IndirectDivisor
	if s > g.opts.IndirectCap {
		s = g.opts.IndirectCap
	}
	return clampStrength(s)
}

// FindPath 沿出边广度优先查找最短跳数路径，maxDepth 为最多经过的边数
//
// 返回最先找到的路径，不保证同跳数路径中强度最大；路径强度为各边强度之积。
// 节点入队时即标记已访问。任一端点不存在或没有路径时返回 nil。
func (g *Graph) FindPath(start, end string, maxDepth int) *Path {
	if !g.HasNode(start) || !g.HasNode(end) {
		return nil
	}

	type item struct {
		id       string
		nodes    []string
		edges    []*Edge
		strength float64
	}
	visited := map[string]bool{start: true}
	queue := []item{{id: start, nodes: []string{start}, strength: 1.0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.id == end {
			return &Path{
				Start:         start,
				End:           end,
				Nodes:         cur.nodes,
				Edges:         cur.edges,
				TotalStrength: cur.strength,
			}
		}

		// len(nodes)-1 条边已走过
		if len(cur.nodes) > maxDepth {
			continue
		}

		for _, e := range g.out[cur.id] {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true

			nodes := make([]string, len(cur.nodes), len(cur.nodes)+1)
			copy(nodes, cur.nodes)
			edges := make([]*Edge, len(cur.edges), len(cur.edges)+1)
			copy(edges, cur.edges)

			queue = append(queue, item{
				id:       e.To,
				nodes:    append(nodes, e.To),
				edges:    append(edges, e),
				strength: cur.strength * e.Strength,
			})
		}
	}
	return nil
}

package graph

// EdgeType 边（关系）类型
type EdgeType string

const (
	EdgeHasDataset      EdgeType = "HAS_DATASET"
	EdgeHasTable        EdgeType = "HAS_TABLE"
	EdgeHasColumn       EdgeType = "HAS_COLUMN"
	EdgeRelatedTo       EdgeType = "RELATED_TO" // 检测到的表间关系
	EdgeHasAttribute    EdgeType = "HAS_ATTRIBUTE"
	EdgeEntityRelation  EdgeType = "ENTITY_RELATION" // 语义模型中的实体关系
	EdgeMapsToEntity    EdgeType = "MAPS_TO_ENTITY"
	EdgeMapsToAttribute EdgeType = "MAPS_TO_ATTRIBUTE"
)

// Edge 有向带权边
type Edge struct {
	ID         string                 `json:"id"`
	From       string                 `json:"from_id"`
	To         string                 `json:"to_id"`
	Type       EdgeType               `json:"type"`
	Strength   float64                `json:"strength"` // 0-1
	Properties map[string]interface{} `json:"properties"`
}

// NewEdge 创建边，强度默认 1.0
func NewEdge(id, from, to string, typ EdgeType, props map[string]interface{}) *Edge {
	if props == nil {
		props = make(map[string]interface{})
	}
	return &Edge{ID: id, From: from, To: to, Type: typ, Strength: 1.0, Properties: props}
}

// WithStrength 设置强度
func (e *Edge) WithStrength(s float64) *Edge {
	e.Strength = s
	return e
}

// reverse 端点互换的镜像边，类型、强度、属性相同
func (e *Edge) reverse() *Edge {
	props := make(map[string]interface{}, len(e.Properties))
	for k, v := range e.Properties {
		props[k] = v
	}
	return &Edge{
		ID:         e.ID + "~reverse",
		From:       e.To,
		To:         e.From,
		Type:       e.Type,
		Strength:   e.Strength,
		Properties: props,
	}
}

// other 边上相对 id 的另一端
func (e *Edge) other(id string) string {
	if e.From == id {
		return e.To
	}
	return e.From
}

func clampStrength(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

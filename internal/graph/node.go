package graph

import "time"

// NodeType 节点类型，开放集合，领域类型由调用方定义
type NodeType string

const (
	NodeTypeDatasource NodeType = "datasource"
	NodeTypeDataset    NodeType = "dataset"
	NodeTypeTable      NodeType = "table"
	NodeTypeColumn     NodeType = "column"
	NodeTypeEntity     NodeType = "entity"
	NodeTypeAttribute  NodeType = "attribute"
)

// Node 图节点
type Node struct {
	ID         string                 `json:"id"`
	Type       NodeType               `json:"type"`
	Label      string                 `json:"label"`
	Properties map[string]interface{} `json:"properties"`
	CreatedAt  *time.Time             `json:"created_at,omitempty"`
}

// NewNode 创建节点
func NewNode(id string, typ NodeType, label string, props map[string]interface{}) *Node {
	if props == nil {
		props = make(map[string]interface{})
	}
	return &Node{ID: id, Type: typ, Label: label, Properties: props}
}

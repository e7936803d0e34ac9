// Package builder 把目录元数据、检测到的关系和语义模型组装成图
package builder

import (
	"context"
	"fmt"
	"sort"

	"schema-graph/internal/analyzer"
	"schema-graph/internal/catalog"
	"schema-graph/internal/graph"
	"schema-graph/internal/metrics"
	"schema-graph/internal/semantics"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config 构建参数
type Config struct {
	Heuristics analyzer.Heuristics
	Graph      graph.Options

	// Validate 采样验证检测到的关系；DropInvalid 丢弃验证不通过的关系（采样失败的保留）
	Validate    bool `koanf:"validate"`
	DropInvalid bool `koanf:"drop_invalid"`
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		Heuristics: analyzer.DefaultHeuristics(),
		Graph:      graph.DefaultOptions(),
	}
}

// Builder 图构建器，每次调用返回新的请求内图实例
type Builder struct {
	catalog  *catalog.Service
	model    *semantics.Model
	cfg      Config
	detector *analyzer.RelationshipDetector
	logger   logrus.FieldLogger
}

// New 创建构建器，model 为 nil 时使用空语义模型
func New(cat *catalog.Service, model *semantics.Model, cfg Config, logger logrus.FieldLogger) *Builder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if model == nil {
		model = semantics.Empty()
	}
	return &Builder{
		catalog:  cat,
		model:    model,
		cfg:      cfg,
		detector: analyzer.NewRelationshipDetector(cfg.Heuristics, logger),
		logger:   logger,
	}
}

// datasetMetadata 数据集的表和列
func datasetMetadata(snap *catalog.Snapshot, datasetID string) ([]catalog.Table, map[string][]catalog.Column) {
	tables := snap.ListTables(datasetID)
	columns := make(map[string][]catalog.Column, len(tables))
	for _, t := range tables {
		columns[t.ID] = snap.ListColumns(t.ID)
	}
	return tables, columns
}

// DetectRelationships 只做关系检测，不构建图
func (b *Builder) DetectRelationships(ctx context.Context, datasetID string) ([]analyzer.DetectedRelationship, error) {
	snap := b.catalog.Snapshot()
	if _, err := snap.Dataset(datasetID); err != nil {
		return nil, err
	}
	tables, columns := datasetMetadata(snap, datasetID)
	return b.detector.Detect(tables, columns), nil
}

// ValidateRelationships 检测并采样验证数据集中的关系
func (b *Builder) ValidateRelationships(ctx context.Context, datasetID string) ([]analyzer.ValidatedRelationship, error) {
	snap := b.catalog.Snapshot()
	conn, err := snap.ConnectorForDataset(datasetID)
	if err != nil {
		return nil, err
	}
	tables, columns := datasetMetadata(snap, datasetID)
	rels := b.detector.Detect(tables, columns)

	sampler := analyzer.NewDataSampler(conn, b.cfg.Heuristics, b.logger)
	return analyzer.NewValidator(sampler, snap).ValidateAll(ctx, rels), nil
}

// ProfileColumn 列画像
func (b *Builder) ProfileColumn(ctx context.Context, tableID, column string) (*analyzer.ColumnProfile, error) {
	snap := b.catalog.Snapshot()
	t, err := snap.Table(tableID)
	if err != nil {
		return nil, err
	}
	if !snap.HasColumn(tableID, column) {
		return nil, errors.Wrapf(catalog.ErrNotFound, "column %q in table %q", column, tableID)
	}
	d, err := snap.Dataset(t.DatasetID)
	if err != nil {
		return nil, err
	}
	conn, err := snap.ConnectorForDataset(d.ID)
	if err != nil {
		return nil, err
	}
	sampler := analyzer.NewDataSampler(conn, b.cfg.Heuristics, b.logger)
	return sampler.Profile(ctx, analyzer.ColumnRef{Dataset: d.Name, Table: t.Name, Column: column})
}

// BuildDataGraph 数据集的表/列图，加上检测到的表间关系
func (b *Builder) BuildDataGraph(ctx context.Context, datasetID string) (*graph.Graph, error) {
	snap := b.catalog.Snapshot()
	if _, err := snap.Dataset(datasetID); err != nil {
		return nil, err
	}
	conn, err := snap.ConnectorForDataset(datasetID)
	if err != nil {
		return nil, err
	}

	log := b.logger.WithField("dataset", datasetID)
	g := graph.NewWithOptions(b.cfg.Graph)

	// 1. 表和列
	tables, columns := datasetMetadata(snap, datasetID)
	lookups := make(map[string]analyzer.LookupTable)
	for _, lt := range analyzer.DetectLookupTables(tables, columns) {
		lookups[lt.TableID] = lt
	}
	for _, t := range tables {
		g.AddNode(tableNode(t, lookups))
		for _, c := range columns[t.ID] {
			g.AddNode(columnNode(c))
			g.AddEdge(graph.NewEdge(t.ID+"->"+c.ID, t.ID, c.ID, graph.EdgeHasColumn, nil), false)
		}
	}

	// 2. 关系检测
	rels := b.detector.Detect(tables, columns)
	log.WithField("relationships", len(rels)).Info("relationships detected")

	// 3. 可选的采样验证
	var validations []analyzer.Validation
	if b.cfg.Validate {
		sampler := analyzer.NewDataSampler(conn, b.cfg.Heuristics, b.logger)
		validator := analyzer.NewValidator(sampler, snap)
		for _, vr := range validator.ValidateAll(ctx, rels) {
			validations = append(validations, vr.Validation)
		}
	}

	dropped := 0
	for i, rel := range rels {
		props := map[string]interface{}{
			"from_column":      rel.FromColumn,
			"to_column":        rel.ToColumn,
			"confidence":       rel.Confidence,
			"detection_method": string(rel.DetectionMethod),
			"metadata":         rel.Metadata,
		}
		if validations != nil {
			v := validations[i]
			if b.cfg.DropInvalid && !v.Valid && v.Error == "" {
				dropped++
				continue
			}
			props["valid"] = v.Valid
			props["overlap_ratio"] = v.OverlapRatio
			if v.Cardinality != "" {
				props["cardinality"] = string(v.Cardinality)
			}
			if v.Error != "" {
				props["validation_error"] = v.Error
			}
		}

		id := fmt.Sprintf("%s.%s->%s.%s", rel.FromTableID, rel.FromColumn, rel.ToTableID, rel.ToColumn)
		g.AddEdge(graph.NewEdge(id, rel.FromTableID, rel.ToTableID, graph.EdgeRelatedTo, props).WithStrength(rel.Confidence), false)
	}
	if dropped > 0 {
		log.WithField("dropped", dropped).Info("relationships rejected by sampling")
	}

	recordGraph(g)
	return g, nil
}

func tableNode(t catalog.Table, lookups map[string]analyzer.LookupTable) *graph.Node {
	props := map[string]interface{}{
		"name":       t.Name,
		"dataset_id": t.DatasetID,
		"num_rows":   t.NumRows,
		"type":       t.Type,
	}
	if lt, ok := lookups[t.ID]; ok {
		props["is_lookup"] = true
		props["lookup_key_column"] = lt.KeyColumn
		props["lookup_confidence"] = lt.Confidence
	}
	return graph.NewNode(t.ID, graph.NodeTypeTable, t.Name, props)
}

func columnNode(c catalog.Column) *graph.Node {
	props := map[string]interface{}{
		"name":           c.Name,
		"table_id":       c.TableID,
		"datatype":       c.Datatype,
		"is_nullable":    c.IsNullable,
		"is_primary_key": c.IsPrimaryKey,
		"is_foreign_key": c.IsForeignKey,
	}
	if c.Description != "" {
		props["description"] = c.Description
	}
	return graph.NewNode(c.ID, graph.NodeTypeColumn, c.Name, props)
}

// BuildPlatformGraph 全平台图：技术元数据 + 语义模型 + 两者之间的映射
func (b *Builder) BuildPlatformGraph(ctx context.Context) (*graph.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := b.catalog.Snapshot()
	g := graph.NewWithOptions(b.cfg.Graph)

	// 1. 技术图
	for _, src := range snap.ListDatasources() {
		g.AddNode(graph.NewNode(src.ID, graph.NodeTypeDatasource, src.Name, map[string]interface{}{
			"type":   src.Type,
			"schema": src.Schema,
		}))
		for _, ds := range snap.ListDatasets(src.ID) {
			g.AddNode(graph.NewNode(ds.ID, graph.NodeTypeDataset, ds.Name, map[string]interface{}{
				"datasource_id": ds.DataSourceID,
			}))
			g.AddEdge(graph.NewEdge(src.ID+"->"+ds.ID, src.ID, ds.ID, graph.EdgeHasDataset, nil), false)

			for _, t := range snap.ListTables(ds.ID) {
				g.AddNode(tableNode(t, nil))
				g.AddEdge(graph.NewEdge(ds.ID+"->"+t.ID, ds.ID, t.ID, graph.EdgeHasTable, nil), false)

				for _, c := range snap.ListColumns(t.ID) {
					g.AddNode(columnNode(c))
					g.AddEdge(graph.NewEdge(t.ID+"->"+c.ID, t.ID, c.ID, graph.EdgeHasColumn, nil), false)
				}
			}
		}
	}

	// 2. 语义图
	for _, e := range b.model.Entities() {
		entityID := EntityID(e.Name)
		g.AddNode(graph.NewNode(entityID, graph.NodeTypeEntity, e.Label, map[string]interface{}{
			"name":        e.Name,
			"description": e.Description,
		}))
		for _, attr := range e.Attributes {
			attrID := entityID + "." + attr.Name
			g.AddNode(graph.NewNode(attrID, graph.NodeTypeAttribute, attr.Name, map[string]interface{}{
				"type":        attr.Type,
				"description": attr.Description,
			}))
			g.AddEdge(graph.NewEdge(entityID+"->"+attrID, entityID, attrID, graph.EdgeHasAttribute, nil), false)
		}
	}
	for _, r := range b.model.Relations() {
		from, to := EntityID(r.FromEntity), EntityID(r.ToEntity)
		g.AddEdge(graph.NewEdge(from+"-"+r.Name+"->"+to, from, to, graph.EdgeEntityRelation, map[string]interface{}{
			"name":        r.Name,
			"cardinality": r.Cardinality,
		}), false)
	}

	// 3. 语义到物理表的映射，只连接目录中存在的表和列
	for _, m := range b.model.Mappings() {
		entityID := EntityID(m.EntityName)
		tableID := catalog.TableID(catalog.DatasetID(m.DatasourceID, m.Dataset), m.Table)
		if snap.HasTable(tableID) {
			g.AddEdge(graph.NewEdge(tableID+"->"+entityID, tableID, entityID, graph.EdgeMapsToEntity, nil), false)
		} else {
			b.logger.WithFields(logrus.Fields{"entity": m.EntityName, "table": tableID}).Debug("mapped table not in catalog")
		}

		attrs := make([]string, 0, len(m.Attributes))
		for attr := range m.Attributes {
			attrs = append(attrs, attr)
		}
		sort.Strings(attrs)
		for _, attr := range attrs {
			col := m.Attributes[attr]
			if !snap.HasColumn(tableID, col) {
				continue
			}
			colID := catalog.ColumnID(tableID, col)
			attrID := entityID + "." + attr
			g.AddEdge(graph.NewEdge(colID+"->"+attrID, colID, attrID, graph.EdgeMapsToAttribute, nil), false)
		}
	}

	recordGraph(g)
	return g, nil
}

// BuildEntityGraph 实体及其 depth 跳内的节点
func (b *Builder) BuildEntityGraph(ctx context.Context, name string, depth int) (*graph.Graph, error) {
	if _, ok := b.model.Entity(name); !ok {
		return nil, errors.Wrapf(catalog.ErrNotFound, "entity %q", name)
	}
	full, err := b.BuildPlatformGraph(ctx)
	if err != nil {
		return nil, err
	}

	entityID := EntityID(name)
	ids := []string{entityID}
	for _, n := range full.RelatedEntities(entityID, "", "", depth) {
		ids = append(ids, n.ID)
	}
	return full.Subgraph(ids), nil
}

// EntityID 实体节点 ID
func EntityID(name string) string {
	return "entity:" + name
}

func recordGraph(g *graph.Graph) {
	s := g.Stats()
	nodes := make(map[string]int, len(s.NodesByType))
	for t, n := range s.NodesByType {
		nodes[string(t)] = n
	}
	edges := make(map[string]int, len(s.EdgesByType))
	for t, n := range s.EdgesByType {
		edges[string(t)] = n
	}
	metrics.RecordGraph(nodes, edges)
}

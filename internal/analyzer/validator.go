package analyzer

import (
	"context"

	"schema-graph/internal/catalog"
)

// ValidatedRelationship 关系及其采样验证结果
type ValidatedRelationship struct {
	DetectedRelationship
	Validation Validation `json:"validation"`
}

// Validator 批量验证检测到的关系
type Validator struct {
	sampler *DataSampler
	snap    *catalog.Snapshot
}

// NewValidator 创建验证器，表 ID 通过快照解析为数据源中的数据集名和表名
func NewValidator(sampler *DataSampler, snap *catalog.Snapshot) *Validator {
	return &Validator{sampler: sampler, snap: snap}
}

// ValidateAll 逐条验证，保持输入顺序，单条失败不影响其他关系
func (v *Validator) ValidateAll(ctx context.Context, rels []DetectedRelationship) []ValidatedRelationship {
	out := make([]ValidatedRelationship, 0, len(rels))
	for _, rel := range rels {
		out = append(out, ValidatedRelationship{
			DetectedRelationship: rel,
			Validation:           v.Validate(ctx, rel),
		})
	}
	return out
}

// Validate 验证单条关系
func (v *Validator) Validate(ctx context.Context, rel DetectedRelationship) Validation {
	from, err := v.resolve(rel.FromTableID, rel.FromColumn)
	if err != nil {
		return Validation{Valid: false, Error: err.Error()}
	}
	to, err := v.resolve(rel.ToTableID, rel.ToColumn)
	if err != nil {
		return Validation{Valid: false, Error: err.Error()}
	}
	return v.sampler.Validate(ctx, from, to)
}

// resolve 表 ID -> 数据源内的列引用
func (v *Validator) resolve(tableID, column string) (ColumnRef, error) {
	t, err := v.snap.Table(tableID)
	if err != nil {
		return ColumnRef{}, err
	}
	d, err := v.snap.Dataset(t.DatasetID)
	if err != nil {
		return ColumnRef{}, err
	}
	return ColumnRef{Dataset: d.Name, Table: t.Name, Column: column}, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"schema-graph/internal/adapter"
	"schema-graph/internal/analyzer"
	"schema-graph/internal/builder"
	"schema-graph/internal/catalog"
	"schema-graph/internal/graph"
	"schema-graph/internal/insight"
	"schema-graph/internal/renderer"
	"schema-graph/internal/semantics"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "扫描数据库并生成关系图、数据字典和 ER 图",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, b, err := connect(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			ids, err := datasetIDs(svc.Snapshot())
			if err != nil {
				return err
			}
			for _, id := range ids {
				dir := outputDir
				if len(ids) > 1 {
					d, _ := svc.Snapshot().Dataset(id)
					dir = filepath.Join(outputDir, d.Name)
				}

				fmt.Printf("\n🔨 构建关系图 %s...\n", id)
				if cfg.Builder.Validate {
					fmt.Println("  (采样验证已启用)")
				}
				g, err := b.BuildDataGraph(ctx, id)
				if err != nil {
					return err
				}
				stats := g.Stats()
				fmt.Printf("✓ %d 个表，%d 个列，%d 个关系\n", stats.Tables, stats.Columns, stats.Relationships)

				fmt.Println("\n📝 生成输出文件...")
				jsonData, err := g.ToJSON()
				if err != nil {
					return err
				}
				if err := writeFile(dir, "graph.json", jsonData); err != nil {
					return err
				}
				if err := writeFile(dir, "dict.md", []byte(renderer.NewMarkdownRenderer().Render(g))); err != nil {
					return err
				}
				if err := writeFile(dir, "er.mmd", []byte(renderer.NewMermaidRenderer().Render(g))); err != nil {
					return err
				}
			}

			fmt.Println("\n✅ 分析完成！")
			return nil
		},
	}
	addConnFlags(cmd)
	cmd.Flags().StringVar(&outputDir, "output", "./output", "输出目录")
	cmd.Flags().Bool("validate", false, "采样验证检测到的关系")
	cmd.Flags().Bool("drop-invalid", false, "丢弃验证未通过的关系（需要 --validate）")
	return cmd
}

func newDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "只检测表间关系（不采样）",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, b, err := connect(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			id, err := singleDataset(svc.Snapshot())
			if err != nil {
				return err
			}

			fmt.Println("\n🔗 推断表间关系...")
			rels, err := b.DetectRelationships(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("✓ 发现 %d 个关系\n", len(rels))
			for _, r := range rels {
				fmt.Printf("  - %s.%s → %s.%s (%s, 置信度: %.2f)\n",
					r.FromTableID, r.FromColumn, r.ToTableID, r.ToColumn, r.DetectionMethod, r.Confidence)
			}

			tables, columns := metadata(svc.Snapshot(), id)
			lookups := analyzer.DetectLookupTables(tables, columns)
			if len(lookups) > 0 {
				fmt.Printf("\n📋 发现 %d 个可能的码表\n", len(lookups))
				for _, lt := range lookups {
					fmt.Printf("  - %s (键列: %s, 置信度: %.2f)\n", lt.TableID, lt.KeyColumn, lt.Confidence)
				}
			}
			return nil
		},
	}
	addConnFlags(cmd)
	return cmd
}

func newValidateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "检测关系并用数据采样验证",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, b, err := connect(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			id, err := singleDataset(svc.Snapshot())
			if err != nil {
				return err
			}

			fmt.Println("\n🧪 采样验证关系...")
			validated, err := b.ValidateRelationships(ctx, id)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(validated)
			}

			valid := 0
			for _, vr := range validated {
				mark := "✗"
				if vr.Validation.Valid {
					mark = "✓"
					valid++
				}
				fmt.Printf("  %s %s.%s → %s.%s 重叠度 %.1f%%",
					mark, vr.FromTableID, vr.FromColumn, vr.ToTableID, vr.ToColumn, vr.Validation.OverlapRatio*100)
				if vr.Validation.Cardinality != "" {
					fmt.Printf(" 基数 %s", vr.Validation.Cardinality)
				}
				if vr.Validation.Error != "" {
					fmt.Printf(" (%s)", vr.Validation.Error)
				}
				fmt.Println()
			}
			fmt.Printf("\n✅ %d/%d 个关系通过验证\n", valid, len(validated))
			return nil
		},
	}
	addConnFlags(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	return cmd
}

func newProfileCmd() *cobra.Command {
	var table, column string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "列画像：基数、空值、样本值",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, b, err := connect(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			id, err := singleDataset(svc.Snapshot())
			if err != nil {
				return err
			}
			profile, err := b.ProfileColumn(ctx, catalog.TableID(id, table), column)
			if err != nil {
				return err
			}
			return printJSON(profile)
		},
	}
	addConnFlags(cmd)
	cmd.Flags().StringVar(&table, "table", "", "表名")
	cmd.Flags().StringVar(&column, "column", "", "列名")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func newPlatformCmd() *cobra.Command {
	var outputDir, entity string
	cmd := &cobra.Command{
		Use:   "platform",
		Short: "扫描配置中的全部数据源，结合语义模型构建全平台图",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(cfg.Sources) == 0 {
				return errors.New("配置中没有数据源 (sources)")
			}

			svc := catalog.NewService(logger)
			defer svc.Close()

			fmt.Printf("🔍 连接 %d 个数据源...\n", len(cfg.Sources))
			for _, src := range cfg.Sources {
				conn, err := adapter.Open(ctx, src.Type, src.DSN, src.Schema)
				if err != nil {
					logger.WithError(err).WithField("source", src.ID).Warn("connect failed, registered without connector")
					conn = nil
				}
				if err := svc.Register(ctx, src, conn); err != nil {
					return err
				}
			}

			results, err := svc.ScanAll(ctx, cfg.Server.ScanWorkers)
			if err != nil {
				logger.WithError(err).Warn("scan incomplete")
			}
			for id, s := range results {
				fmt.Printf("✓ %s: %d 个表，%d 个列\n", id, s.Tables, s.Columns)
			}

			model, err := semantics.Load(cfg.Semantics.Dir, logger)
			if err != nil {
				return err
			}
			b := builder.New(svc, model, cfg.BuilderOptions(), logger)

			var g *graph.Graph
			if entity != "" {
				g, err = b.BuildEntityGraph(ctx, entity, cfg.Graph.DefaultPathDepth)
			} else {
				g, err = b.BuildPlatformGraph(ctx)
			}
			if err != nil {
				return err
			}

			data, err := g.ToJSON()
			if err != nil {
				return err
			}
			stats := g.Stats()
			fmt.Printf("✓ %d 个节点，%d 条边\n", stats.TotalNodes, stats.TotalEdges)
			return writeFile(outputDir, "platform.json", data)
		},
	}
	cmd.Flags().StringVar(&outputDir, "output", "./output", "输出目录")
	cmd.Flags().StringVar(&entity, "entity", "", "只输出该实体附近的子图")
	cmd.Flags().Int("depth", 3, "实体子图深度")
	cmd.Flags().Int("scan-workers", 4, "并发扫描的数据源数")
	return cmd
}

func newCustomerCmd() *cobra.Command {
	var input, outputDir string
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "从客户记录 JSON 构建客户关系图并输出洞察",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(input)
			if err != nil {
				return errors.Wrapf(err, "read %s", input)
			}
			var records builder.CustomerRecords
			if err := json.Unmarshal(data, &records); err != nil {
				return errors.Wrapf(err, "decode %s", input)
			}

			b := builder.New(catalog.NewService(logger), nil, cfg.BuilderOptions(), logger)
			g := b.BuildCustomerGraph(records)

			out, err := g.ToJSON()
			if err != nil {
				return err
			}
			if err := writeFile(outputDir, "customer.json", out); err != nil {
				return err
			}
			return printJSON(g.Insights(records.Customer.ID))
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "客户记录 JSON 文件")
	cmd.Flags().StringVar(&outputDir, "output", "./output", "输出目录")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newPathCmd() *cobra.Command {
	var graphFile, from, to string
	cmd := &cobra.Command{
		Use:   "path",
		Short: "在已生成的图中查找两节点间的路径",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(graphFile)
			if err != nil {
				return err
			}
			p := g.FindPath(from, to, cfg.Graph.DefaultPathDepth)
			if p == nil {
				fmt.Printf("⚠️  %d 跳内没有从 %s 到 %s 的路径\n", cfg.Graph.DefaultPathDepth, from, to)
				return nil
			}
			fmt.Printf("✓ %s (强度: %.3f)\n", strings.Join(p.Nodes, " → "), p.TotalStrength)
			return nil
		},
	}
	cmd.Flags().StringVar(&graphFile, "graph", "./output/graph.json", "图文件")
	cmd.Flags().StringVar(&from, "from", "", "起点节点 ID")
	cmd.Flags().StringVar(&to, "to", "", "终点节点 ID")
	cmd.Flags().Int("depth", 3, "最大跳数")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newInsightsCmd() *cobra.Command {
	var graphFile, node string
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "输出节点的洞察",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(graphFile)
			if err != nil {
				return err
			}
			if !g.HasNode(node) {
				return errors.Wrapf(catalog.ErrNotFound, "node %q", node)
			}
			return printJSON(g.Insights(node))
		},
	}
	cmd.Flags().StringVar(&graphFile, "graph", "./output/graph.json", "图文件")
	cmd.Flags().StringVar(&node, "node", "", "节点 ID")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}

// loadGraph 读取 scan / platform / customer 输出的图，并注册客户活跃度规则
func loadGraph(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	g, err := graph.FromJSON(data, cfg.Graph)
	if err != nil {
		return nil, err
	}
	g.RegisterInsightRule(insight.NewRecentActivity(builder.NodeTypeCustomer, builder.EdgeCustomerInteraction, cfg.Graph.ActivityWindowDays))

	logger.WithFields(logrus.Fields{
		"file":  path,
		"nodes": g.Stats().TotalNodes,
	}).Debug("graph loaded")
	return g, nil
}

// metadata 数据集的表和按表分组的列
func metadata(snap *catalog.Snapshot, datasetID string) ([]catalog.Table, map[string][]catalog.Column) {
	tables := snap.ListTables(datasetID)
	columns := make(map[string][]catalog.Column, len(tables))
	for _, t := range tables {
		columns[t.ID] = snap.ListColumns(t.ID)
	}
	return tables, columns
}

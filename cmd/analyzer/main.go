package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"schema-graph/internal/adapter"
	"schema-graph/internal/builder"
	"schema-graph/internal/catalog"
	"schema-graph/internal/config"
	"schema-graph/internal/logging"
	"schema-graph/internal/semantics"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// cliSourceID 命令行连接注册到目录时使用的数据源 ID
const cliSourceID = "cli"

var (
	cfgFile string
	dbType  string
	connStr string
	schema  string
	dataset string

	cfg    *config.Config
	logger *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "schema-graph",
		Short:         "数据库元数据关系图",
		Long:          "扫描数据库元数据，推断并采样验证表间关系，构建可遍历的关系图，生成数据字典和 ER 图",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
			return err
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "配置文件（默认 ./schema-graph.yaml）")
	pf.String("log-level", "info", "日志级别 (debug/info/warn/error)")
	pf.String("log-format", "text", "日志格式 (text/json)")
	pf.String("semantics-dir", "semantics", "语义模型目录")

	rootCmd.AddCommand(
		newScanCmd(),
		newDetectCmd(),
		newValidateCmd(),
		newProfileCmd(),
		newPlatformCmd(),
		newCustomerCmd(),
		newPathCmd(),
		newInsightsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// addConnFlags 需要连接数据库的命令共用的参数
func addConnFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&dbType, "type", "sqlserver", "数据库类型 (sqlserver/mysql/postgres/sqlite)")
	cmd.Flags().StringVar(&connStr, "conn", "", "连接字符串")
	cmd.Flags().StringVar(&schema, "schema", "", "数据库 schema (MySQL 必需)")
	cmd.Flags().StringVar(&dataset, "dataset", "", "数据集名称（只有一个数据集时可省略）")
	cmd.Flags().Int("sample-size", 1000, "采样大小")
	_ = cmd.MarkFlagRequired("conn")
}

// connect 连接数据库、注册并扫描，返回目录服务和构建器
func connect(ctx context.Context) (*catalog.Service, *builder.Builder, error) {
	if dbType == "mysql" && schema == "" {
		return nil, nil, errors.New("MySQL 需要指定 --schema 参数")
	}

	fmt.Println("🔍 连接数据库...")
	conn, err := adapter.Open(ctx, dbType, connStr, schema)
	if err != nil {
		return nil, nil, errors.Wrap(err, "连接数据库失败")
	}
	fmt.Println("✓ 数据库连接成功")

	svc := catalog.NewService(logger)
	src := catalog.DataSource{ID: cliSourceID, Type: dbType, Name: dbType, Schema: schema}
	if err := svc.Register(ctx, src, conn); err != nil {
		conn.Close()
		return nil, nil, err
	}

	fmt.Println("\n📊 获取数据库元数据...")
	stats, err := svc.Scan(ctx, cliSourceID)
	if err != nil {
		svc.Close()
		return nil, nil, errors.Wrap(err, "获取元数据失败")
	}
	fmt.Printf("✓ 发现 %d 个数据集，%d 个表，%d 个列\n", stats.Datasets, stats.Tables, stats.Columns)

	model, err := semantics.Load(cfg.Semantics.Dir, logger)
	if err != nil {
		svc.Close()
		return nil, nil, err
	}
	return svc, builder.New(svc, model, cfg.BuilderOptions(), logger), nil
}

// datasetIDs 要处理的数据集：--dataset 指定的一个，或扫描到的全部
func datasetIDs(snap *catalog.Snapshot) ([]string, error) {
	if dataset != "" {
		id := catalog.DatasetID(cliSourceID, dataset)
		if _, err := snap.Dataset(id); err != nil {
			return nil, err
		}
		return []string{id}, nil
	}
	var ids []string
	for _, d := range snap.ListDatasets(cliSourceID) {
		ids = append(ids, d.ID)
	}
	if len(ids) == 0 {
		return nil, errors.New("没有可用的数据集")
	}
	return ids, nil
}

// singleDataset 只允许一个数据集的命令
func singleDataset(snap *catalog.Snapshot) (string, error) {
	ids, err := datasetIDs(snap)
	if err != nil {
		return "", err
	}
	if len(ids) > 1 {
		names := make([]string, 0, len(ids))
		for _, id := range ids {
			names = append(names, strings.TrimPrefix(id, cliSourceID+"."))
		}
		sort.Strings(names)
		return "", errors.Errorf("存在多个数据集，请用 --dataset 指定: %s", strings.Join(names, ", "))
	}
	return ids[0], nil
}

// writeFile 写入输出文件并打印路径
func writeFile(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	fmt.Printf("✓ %s\n", path)
	return nil
}

// printJSON 以缩进 JSON 输出到 stdout
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

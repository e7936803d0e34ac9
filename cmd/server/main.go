package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schema-graph/internal/adapter"
	"schema-graph/internal/builder"
	"schema-graph/internal/catalog"
	"schema-graph/internal/config"
	"schema-graph/internal/logging"
	"schema-graph/internal/semantics"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	flags := pflag.NewFlagSet("schema-graph-server", pflag.ExitOnError)
	cfgFile := flags.String("config", "", "配置文件（默认 ./schema-graph.yaml）")
	flags.String("addr", ":8080", "监听地址")
	flags.String("log-level", "info", "日志级别")
	flags.String("log-format", "text", "日志格式 (text/json)")
	flags.String("semantics-dir", "semantics", "语义模型目录")
	flags.Int("scan-workers", 4, "启动时并发扫描的数据源数")
	flags.Bool("validate", false, "构建时采样验证关系")
	flags.Bool("drop-invalid", false, "丢弃验证未通过的关系")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*cfgFile, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	svc := catalog.NewService(logger)
	defer svc.Close()

	// 1. 注册配置中的数据源，连接失败的只登记元数据
	for _, src := range cfg.Sources {
		conn, err := adapter.Open(ctx, src.Type, src.DSN, src.Schema)
		if err != nil {
			logger.WithError(err).WithField("source", src.ID).Warn("connect failed, registered without connector")
			conn = nil
		}
		if err := svc.Register(ctx, src, conn); err != nil {
			logger.WithError(err).WithField("source", src.ID).Warn("register failed")
			if conn != nil {
				conn.Close()
			}
		}
	}

	// 2. 启动时扫描一次
	if _, err := svc.ScanAll(ctx, cfg.Server.ScanWorkers); err != nil {
		logger.WithError(err).Warn("initial scan incomplete")
	}

	model, err := semantics.Load(cfg.Semantics.Dir, logger)
	if err != nil {
		return err
	}

	a := &api{
		catalog: svc,
		builder: builder.New(svc, model, cfg.BuilderOptions(), logger),
		model:   model,
		opts:    cfg.Graph,
		open: func(ctx context.Context, ds catalog.DataSource) (adapter.DBAdapter, error) {
			return adapter.Open(ctx, ds.Type, ds.DSN, ds.Schema)
		},
		logger: logger,
	}

	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: newRouter(a),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚀 Schema Graph Server\n")
	fmt.Printf("📡 服务地址: %s\n", cfg.Server.Addr)
	fmt.Printf("📊 指标: %s/metrics\n\n", cfg.Server.Addr)

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "server error")
		}
		return nil
	})

	// 优雅关闭
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

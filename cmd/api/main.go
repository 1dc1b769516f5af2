package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ethrank/internal/api"
	"ethrank/internal/config"
	"ethrank/internal/connection"
	"ethrank/internal/logging"
	"ethrank/internal/output"
	"ethrank/internal/scanner"
	"ethrank/internal/shutdown"
	"ethrank/internal/snapshot"
)

var (
	configPath string
	port       int
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ethrank-api",
		Short: "ethrank 扫描控制服务",
		RunE:  run,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.Flags().IntVar(&port, "port", 8080, "API 服务端口")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "详细输出")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// 自动检测并加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}

	logger := logging.NewLogrusLogger(cfg.Logging, verbose)

	gs := shutdown.NewGracefulShutdown(30*time.Second, logger)
	gs.Start()
	defer func() {
		if err := gs.Close(); err != nil {
			logger.Errorf("停机过程出错: %v", err)
		}
	}()

	// 连接节点
	client, err := connection.Dial(gs.Context(), cfg.Node, logger)
	if err != nil {
		return err
	}
	gs.RegisterShutdownFunc("node", func(context.Context) error {
		client.Close()
		return nil
	}, shutdown.OrderCloseConnections)

	head, err := client.Ping(gs.Context())
	if err != nil {
		return fmt.Errorf("节点不可用: %w", err)
	}
	logger.Infof("已连接节点 %s，最新区块: %d", client.URL(), head)

	opts, err := scanner.OptionsFromConfig(cfg.Scanner)
	if err != nil {
		return err
	}
	sc := scanner.New(client, opts, logger)
	if verbose {
		structured, err := logging.NewStructuredLogger(cfg.Logging)
		if err != nil {
			logger.Warnf("创建结构化日志器失败: %v", err)
		} else {
			sc.SetStructuredLogger(structured)
			client.SetStructuredLogger(structured)
		}
	}

	// 创建输出器
	outputter, err := output.NewOutput(cfg.Output, logger)
	if err != nil {
		return fmt.Errorf("创建输出器失败: %w", err)
	}
	gs.RegisterShutdownFunc("output", func(context.Context) error {
		return outputter.Close()
	}, shutdown.OrderFlushOutput)

	var store api.ReportStore
	if cfg.Snapshot != nil && cfg.Snapshot.Enabled {
		snapshots, err := snapshot.NewManager(cfg.Snapshot.Path, logger)
		if err != nil {
			return err
		}
		store = snapshots
		gs.RegisterShutdownFunc("snapshot", func(context.Context) error {
			return snapshots.Close()
		}, shutdown.OrderSaveSnapshot)
	}

	// 创建API服务器
	server := api.NewServer(cfg, sc, store, outputter, logger, port)
	gs.RegisterShutdownFunc("api", server.Stop, shutdown.OrderStopAcceptingRequests)
	gs.RegisterShutdownFunc("scan", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			server.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, shutdown.OrderStopScan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	// 等待中断信号或服务器退出
	select {
	case <-gs.Done():
		logger.Info("正在关闭服务器...")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("启动服务器失败: %w", err)
		}
	}
	return nil
}

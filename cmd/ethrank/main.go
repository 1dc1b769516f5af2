package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ethrank/internal/config"
	"ethrank/internal/connection"
	"ethrank/internal/logging"
	"ethrank/internal/output"
	"ethrank/internal/scanner"
	"ethrank/internal/shutdown"
	"ethrank/internal/snapshot"
	"ethrank/pkg/models"
)

var (
	// 基础参数
	rpcURL     string
	startBlock uint64
	endBlock   uint64
	workers    int
	outputDir  string
	format     string

	// 扫描参数
	traceMode      string
	creationTarget string

	// 高级参数
	configFile string
	verbose    bool

	// 快照参数
	noSnapshot    bool
	resetSnapshot bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ethrank",
		Short: "以太坊合约交互与钱包余额排行工具",
		Long:  `扫描指定区块范围内的交易，区分合约与钱包，按交互次数对合约排序、按ETH余额对钱包排序`,
		RunE:  run,
	}

	// 基础参数
	rootCmd.Flags().StringVar(&rpcURL, "rpc-url", "", "节点RPC地址")
	rootCmd.Flags().Uint64Var(&startBlock, "start-block", 0, "起始区块号")
	rootCmd.Flags().Uint64Var(&endBlock, "end-block", 0, "结束区块号（包含）")
	rootCmd.Flags().IntVar(&workers, "workers", 4, "工作协程数")
	rootCmd.Flags().StringVar(&outputDir, "output", ".", "CSV输出目录")
	rootCmd.Flags().StringVar(&format, "format", config.OutputFormatCSV, "输出格式 (csv|kafka)")

	// 扫描参数
	rootCmd.Flags().StringVar(&traceMode, "trace-mode", config.TraceModeShallow, "内部调用统计方式 (shallow|recursive)")
	rootCmd.Flags().StringVar(&creationTarget, "creation-target", config.CreationTargetCreator, "合约创建交易的交互目标 (creator|deployed)")

	// 高级参数
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")

	// 快照参数
	rootCmd.Flags().BoolVar(&noSnapshot, "no-snapshot", false, "不保存扫描快照")

	// 快照查询子命令
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "查看最近一次扫描快照",
		RunE:  showSnapshot,
	}
	snapshotCmd.Flags().BoolVar(&resetSnapshot, "reset", false, "清空全部快照")

	rootCmd.AddCommand(snapshotCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags 用显式指定的命令行参数覆盖配置
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("rpc-url") {
		cfg.Node.URL = rpcURL
	}
	if flags.Changed("start-block") {
		cfg.Scanner.StartBlock = startBlock
	}
	if flags.Changed("end-block") {
		cfg.Scanner.EndBlock = endBlock
	}
	if flags.Changed("workers") {
		cfg.Scanner.Workers = workers
	}
	if flags.Changed("trace-mode") {
		cfg.Scanner.TraceMode = traceMode
	}
	if flags.Changed("creation-target") {
		cfg.Scanner.CreationTarget = creationTarget
	}
	if flags.Changed("output") {
		cfg.Output.Directory = outputDir
	}
	if flags.Changed("format") {
		cfg.Output.Format = format
	}
	if noSnapshot && cfg.Snapshot != nil {
		cfg.Snapshot.Enabled = false
	}
}

func run(cmd *cobra.Command, args []string) error {
	// 加载配置
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}

	logger := logging.NewLogrusLogger(cfg.Logging, verbose)

	opts, err := scanner.OptionsFromConfig(cfg.Scanner)
	if err != nil {
		return err
	}

	// 启动优雅停机监听
	gs := shutdown.NewGracefulShutdown(30*time.Second, logger)
	gs.Start()
	defer func() {
		if err := gs.Close(); err != nil {
			logger.Errorf("停机过程出错: %v", err)
		}
	}()
	ctx := gs.Context()

	// 连接节点
	client, err := connection.Dial(ctx, cfg.Node, logger)
	if err != nil {
		return err
	}
	gs.RegisterShutdownFunc("node", func(context.Context) error {
		client.Close()
		return nil
	}, shutdown.OrderCloseConnections)

	head, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("节点不可用: %w", err)
	}
	logger.Infof("已连接节点 %s，最新区块: %d", client.URL(), head)
	if cfg.Scanner.EndBlock > head {
		logger.Warnf("结束区块 %d 超过节点最新区块 %d，不存在的区块将被跳过", cfg.Scanner.EndBlock, head)
	}

	// 快照
	var snapshots *snapshot.Manager
	if cfg.Snapshot != nil && cfg.Snapshot.Enabled {
		snapshots, err = snapshot.NewManager(cfg.Snapshot.Path, logger)
		if err != nil {
			return err
		}
		gs.RegisterShutdownFunc("snapshot", func(context.Context) error {
			return snapshots.Close()
		}, shutdown.OrderSaveSnapshot)
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

	report, scanErr := sc.Scan(ctx, cfg.Scanner.StartBlock, cfg.Scanner.EndBlock)

	// 部分结果同样保存
	if report != nil && snapshots != nil {
		if id, err := snapshots.Save(report); err != nil {
			logger.Errorf("保存快照失败: %v", err)
		} else {
			logger.Infof("扫描结果已保存为快照 #%d", id)
		}
	}
	if scanErr != nil {
		if gs.Interrupted() {
			return fmt.Errorf("扫描被中断: %w", scanErr)
		}
		return scanErr
	}

	if err := output.PrintReport(os.Stdout, report); err != nil {
		return fmt.Errorf("打印报告失败: %w", err)
	}
	return writeOutput(cfg.Output, report, logger)
}

// writeOutput 写出两张排行榜
func writeOutput(cfg *config.OutputConfig, report *models.Report, logger *logrus.Logger) error {
	outputter, err := output.NewOutput(cfg, logger)
	if err != nil {
		return fmt.Errorf("创建输出器失败: %w", err)
	}
	defer outputter.Close()

	if err := output.WriteReport(outputter, report); err != nil {
		return fmt.Errorf("输出报告失败: %w", err)
	}
	return nil
}

// showSnapshot 显示最近一次扫描快照
func showSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	logger := logging.NewLogrusLogger(cfg.Logging, verbose)

	path := snapshot.DefaultDBPath
	if cfg.Snapshot != nil && cfg.Snapshot.Path != "" {
		path = cfg.Snapshot.Path
	}
	manager, err := snapshot.NewManager(path, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	if resetSnapshot {
		if err := manager.Reset(); err != nil {
			return fmt.Errorf("清空快照失败: %w", err)
		}
		logger.Info("快照已清空")
		return nil
	}

	count, err := manager.Count()
	if err != nil {
		return err
	}
	latest := manager.Latest()
	if latest == nil {
		fmt.Println("暂无扫描快照")
		return nil
	}

	report := latest.Report
	fmt.Println("扫描快照信息")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("%-20s: %s\n", "数据库路径", manager.GetDBPath())
	fmt.Printf("%-20s: %d\n", "快照数量", count)
	fmt.Printf("%-20s: %d\n", "最新快照ID", latest.ID)
	fmt.Printf("%-20s: %s\n", "保存时间", latest.SavedAt.Format(time.RFC3339))
	fmt.Printf("%-20s: %d - %d\n", "区块范围", report.StartBlock, report.EndBlock)
	fmt.Printf("%-20s: %d (不存在 %d)\n", "已扫描区块", report.ScannedBlocks, report.AbsentBlocks)
	fmt.Printf("%-20s: %d\n", "交易数", report.Transactions)
	fmt.Printf("%-20s: %v\n", "部分结果", report.Partial)
	if report.FailureReason != "" {
		fmt.Printf("%-20s: %s\n", "失败原因", report.FailureReason)
	}
	fmt.Printf("%-20s: %v\n", "余额已查询", report.BalancesResolved)
	fmt.Println()

	return output.PrintReport(os.Stdout, report)
}

package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ethrank/internal/config"
	"ethrank/internal/logging"
	"ethrank/internal/validation"
	"ethrank/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CreationTarget 合约创建交易的交互目标
type CreationTarget int

const (
	TargetCreator  CreationTarget = iota // 以创建者地址代替
	TargetDeployed                       // 由 from 与 nonce 推导的部署地址
)

// ParseCreationTarget 解析配置中的合约创建目标
func ParseCreationTarget(s string) (CreationTarget, error) {
	switch s {
	case "", config.CreationTargetCreator:
		return TargetCreator, nil
	case config.CreationTargetDeployed:
		return TargetDeployed, nil
	default:
		return TargetCreator, fmt.Errorf("不支持的合约创建目标: %q", s)
	}
}

// Options 扫描参数
type Options struct {
	Workers        int
	TraceMode      TraceMode
	CreationTarget CreationTarget
	CacheSizeMB    int
}

// DefaultOptions 默认扫描参数
func DefaultOptions() Options {
	return Options{
		Workers:        4,
		TraceMode:      TraceShallow,
		CreationTarget: TargetCreator,
		CacheSizeMB:    16,
	}
}

// OptionsFromConfig 由扫描器配置构造扫描参数
func OptionsFromConfig(cfg *config.ScannerConfig) (Options, error) {
	opts := DefaultOptions()
	if cfg == nil {
		return opts, nil
	}

	mode, err := ParseTraceMode(cfg.TraceMode)
	if err != nil {
		return opts, err
	}
	target, err := ParseCreationTarget(cfg.CreationTarget)
	if err != nil {
		return opts, err
	}

	opts.TraceMode = mode
	opts.CreationTarget = target
	if cfg.Workers > 0 {
		opts.Workers = cfg.Workers
	}
	if cfg.CacheSizeMB > 0 {
		opts.CacheSizeMB = cfg.CacheSizeMB
	}
	return opts, nil
}

// Scanner 区块范围扫描器
type Scanner struct {
	node       Node
	opts       Options
	logger     *logrus.Logger
	structured *logging.StructuredLogger
	validator  *validation.Validator

	mu      sync.Mutex
	current *Aggregator
}

// New 创建扫描器
func New(node Node, opts Options, logger *logrus.Logger) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scanner{
		node:      node,
		opts:      opts,
		logger:    logger,
		validator: validation.NewValidator(logger, false),
	}
}

// SetStructuredLogger 设置区块级结构化日志器
func (s *Scanner) SetStructuredLogger(l *logging.StructuredLogger) {
	s.structured = l
}

// Stats 当前（或最近一次）扫描的进度
func (s *Scanner) Stats() (Stats, bool) {
	s.mu.Lock()
	agg := s.current
	s.mu.Unlock()

	if agg == nil {
		return Stats{}, false
	}
	return agg.Stats(), true
}

// Scan 扫描闭区间 [start, end]。致命错误时返回已汇总的部分报告和错误
func (s *Scanner) Scan(ctx context.Context, start, end uint64) (*models.Report, error) {
	if err := config.ValidateRange(start, end); err != nil {
		return nil, err
	}

	agg := NewAggregator()
	if err := agg.Begin(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = agg
	s.mu.Unlock()

	classifier := NewClassifier(s.node, s.opts.CacheSizeMB)
	expander := NewTraceExpander(s.node, s.opts.TraceMode)

	s.logger.Infof("开始扫描区块 %d - %d，使用 %d 个工作者", start, end, s.opts.Workers)
	var scanLog *logging.FieldLogger
	if s.structured != nil {
		scanLog = logging.NewScanLogger(s.structured, start, end)
		scanLog.Info("扫描开始", "workers", s.opts.Workers, "trace_mode", s.opts.TraceMode.String())
	}
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	taskChan := make(chan uint64, s.opts.Workers*2)

	// 发送任务
	g.Go(func() error {
		defer close(taskChan)
		for blockNum := start; ; blockNum++ {
			select {
			case taskChan <- blockNum:
			case <-gctx.Done():
				return gctx.Err()
			}
			if blockNum == end {
				return nil
			}
		}
	})

	for i := 0; i < s.opts.Workers; i++ {
		g.Go(func() error {
			return s.worker(gctx, taskChan, agg, classifier, expander)
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Errorf("扫描区块 %d - %d 失败: %v", start, end, err)
		report := s.buildReport(start, end, agg.Partial(), nil)
		report.Partial = true
		report.FailureReason = err.Error()
		if scanLog != nil {
			scanLog.Error("扫描失败", "error", err.Error(), "scanned_blocks", report.ScannedBlocks)
		}
		return report, fmt.Errorf("扫描区块 %d - %d 失败: %w", start, end, err)
	}

	result, err := agg.Finish()
	if err != nil {
		return nil, err
	}
	s.logger.Infof("区块扫描完成: %d 个区块（%d 个不存在），%d 笔交易，%d 个合约，%d 个钱包，代码查询 %d 次，耗时 %v",
		result.ScannedBlocks, result.AbsentBlocks, result.Transactions,
		len(result.Contracts), len(result.Wallets), classifier.Lookups(), time.Since(startTime))

	resolver := NewBalanceResolver(s.node)
	balances, err := resolver.ResolveAll(ctx, result.Wallets, s.opts.Workers)
	if err != nil {
		s.logger.Errorf("查询钱包余额失败: %v", err)
		report := s.buildReport(start, end, result, nil)
		report.Partial = true
		report.FailureReason = err.Error()
		if scanLog != nil {
			scanLog.Error("查询钱包余额失败", "error", err.Error(), "wallets", len(result.Wallets))
		}
		return report, fmt.Errorf("查询钱包余额失败: %w", err)
	}

	report := s.buildReport(start, end, result, balances)
	if scanLog != nil {
		scanLog.Info("扫描完成",
			"contracts", len(report.Contracts),
			"wallets", len(report.Wallets),
			"duration", time.Since(startTime).String())
	}
	return report, nil
}

// worker 处理区块任务直到通道关闭，出错即返回以取消整个扫描
func (s *Scanner) worker(ctx context.Context, taskChan <-chan uint64, agg *Aggregator, classifier *Classifier, expander *TraceExpander) error {
	for blockNum := range taskChan {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.processBlock(ctx, blockNum, agg, classifier, expander); err != nil {
			return err
		}
	}
	return nil
}

// processBlock 分类一个区块的全部交易并一次性写入聚合器
func (s *Scanner) processBlock(ctx context.Context, blockNum uint64, agg *Aggregator, classifier *Classifier, expander *TraceExpander) error {
	block, err := s.node.BlockByNumber(ctx, blockNum)
	if err != nil {
		return fmt.Errorf("获取区块 %d 失败: %w", blockNum, err)
	}
	if err := s.validator.ValidateBlock(blockNum, block).Err(); err != nil {
		return fmt.Errorf("区块 %d 数据无效: %w", blockNum, err)
	}
	if block == nil {
		s.logger.Debugf("区块 %d 不存在，跳过", blockNum)
		if s.structured != nil {
			logging.NewBlockLogger(s.structured, blockNum).Warn("区块不存在，已跳过")
		}
		return agg.RecordAbsent(blockNum)
	}

	observations := make([]Observation, 0, block.TransactionCount())
	for i, tx := range block.Transactions {
		obs, err := s.observe(ctx, blockNum, i, tx, classifier, expander)
		if err != nil {
			return fmt.Errorf("处理区块 %d 交易 %s 失败: %w", blockNum, tx.Hash.Hex(), err)
		}
		observations = append(observations, obs)
	}

	if err := agg.ObserveBlock(blockNum, observations); err != nil {
		return err
	}

	if s.structured != nil {
		logging.NewBlockLogger(s.structured, blockNum).Debug("区块处理完成", "transactions", len(observations))
	}
	return nil
}

// observe 对单笔交易分类并获取内部调用数
func (s *Scanner) observe(ctx context.Context, blockNum uint64, index int, tx *models.Transaction, classifier *Classifier, expander *TraceExpander) (Observation, error) {
	obs := Observation{
		Block:  blockNum,
		Tx:     index,
		From:   tx.From,
		Target: s.target(tx),
	}

	isContract, err := classifier.IsContract(ctx, obs.Target)
	if err != nil {
		return obs, err
	}
	obs.IsContract = isContract
	if !isContract {
		return obs, nil
	}

	calls, err := expander.InternalCallCount(ctx, tx.Hash)
	if err != nil {
		return obs, err
	}
	obs.InternalCalls = calls
	return obs, nil
}

// target 交易的交互目标
func (s *Scanner) target(tx *models.Transaction) common.Address {
	if tx.To != nil {
		return *tx.To
	}
	if s.opts.CreationTarget == TargetDeployed {
		return crypto.CreateAddress(tx.From, tx.Nonce)
	}
	return tx.From
}

// buildReport 排序并组装报告，balances 为 nil 表示余额未查询
func (s *Scanner) buildReport(start, end uint64, result *Result, balances []models.WalletBalance) *models.Report {
	report := &models.Report{
		StartBlock:       start,
		EndBlock:         end,
		Contracts:        RankContracts(result.Contracts),
		ScannedBlocks:    result.ScannedBlocks,
		AbsentBlocks:     result.AbsentBlocks,
		Transactions:     result.Transactions,
		BalancesResolved: balances != nil,
		CreatedAt:        time.Now(),
	}

	if balances != nil {
		report.Wallets = RankWallets(balances)
	} else {
		// 余额未知，按首次出现顺序列出
		report.Wallets = make([]models.WalletBalance, len(result.Wallets))
		for i, addr := range result.Wallets {
			report.Wallets[i] = models.WalletBalance{Address: addr, Balance: decimal.Zero}
		}
	}
	return report
}

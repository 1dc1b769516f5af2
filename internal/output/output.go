package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"ethrank/internal/config"
	"ethrank/pkg/models"

	"github.com/sirupsen/logrus"
)

// 表头
var (
	ContractsHeader = []string{"Contract Address", "Interaction Count"}
	WalletsHeader   = []string{"Wallet Address", "Balance (ETH)"}
)

// Output 排行榜输出接口，行按排名顺序传入
type Output interface {
	WriteContractInteractions(rows []models.ContractInteraction) error
	WriteWalletBalances(rows []models.WalletBalance) error
	Close() error
}

// NewOutput 按配置创建输出器
func NewOutput(cfg *config.OutputConfig, logger *logrus.Logger) (Output, error) {
	if cfg == nil {
		return nil, fmt.Errorf("缺少输出配置")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	switch cfg.Format {
	case config.OutputFormatKafka:
		if cfg.Kafka == nil {
			return nil, fmt.Errorf("kafka输出缺少配置")
		}
		return NewKafkaOutput(cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
	case config.OutputFormatCSV, "":
		return NewCSVOutput(cfg.Directory, cfg.ContractsFile, cfg.WalletsFile, logger)
	default:
		return nil, fmt.Errorf("不支持的输出格式: %s", cfg.Format)
	}
}

// WriteReport 写出两张排行榜
func WriteReport(out Output, report *models.Report) error {
	if report == nil {
		return nil
	}
	if err := out.WriteContractInteractions(report.Contracts); err != nil {
		return err
	}
	return out.WriteWalletBalances(report.Wallets)
}

// CSVOutput CSV文件输出
type CSVOutput struct {
	contractsPath string
	walletsPath   string
	logger        *logrus.Logger
}

// NewCSVOutput 创建CSV输出器，文件在写入时创建
func NewCSVOutput(outputDir, contractsFile, walletsFile string, logger *logrus.Logger) (*CSVOutput, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	return &CSVOutput{
		contractsPath: filepath.Join(outputDir, contractsFile),
		walletsPath:   filepath.Join(outputDir, walletsFile),
		logger:        logger,
	}, nil
}

// WriteContractInteractions 写入合约交互表
func (o *CSVOutput) WriteContractInteractions(rows []models.ContractInteraction) error {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{
			models.FormatAddress(row.Address),
			strconv.FormatUint(row.Count, 10),
		})
	}
	if err := writeTable(o.contractsPath, ContractsHeader, records); err != nil {
		return fmt.Errorf("写入合约交互表失败: %w", err)
	}
	o.logger.Infof("合约交互表已保存到 '%s'（%d 行）", o.contractsPath, len(rows))
	return nil
}

// WriteWalletBalances 写入钱包余额表
func (o *CSVOutput) WriteWalletBalances(rows []models.WalletBalance) error {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{
			models.FormatAddress(row.Address),
			row.Balance.String(),
		})
	}
	if err := writeTable(o.walletsPath, WalletsHeader, records); err != nil {
		return fmt.Errorf("写入钱包余额表失败: %w", err)
	}
	o.logger.Infof("钱包余额表已保存到 '%s'（%d 行）", o.walletsPath, len(rows))
	return nil
}

// Close CSV文件在每次写入后已关闭
func (o *CSVOutput) Close() error {
	return nil
}

// writeTable 覆盖写入表头和数据行
func writeTable(path string, header []string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(records); err != nil {
		return err
	}

	// 强制刷新到磁盘
	return file.Sync()
}

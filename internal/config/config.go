package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"ethrank/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// 追踪模式
const (
	TraceModeShallow   = "shallow"   // 只统计直接子调用
	TraceModeRecursive = "recursive" // 统计全部后代调用
)

// 合约创建交易的交互目标
const (
	CreationTargetCreator  = "creator"  // 使用创建者地址代替
	CreationTargetDeployed = "deployed" // 由创建者地址与nonce推导部署地址
)

// 输出格式
const (
	OutputFormatCSV   = "csv"
	OutputFormatKafka = "kafka"
)

// DBDSNEnv 数据库配置源环境变量
const DBDSNEnv = "ETHRANK_DB_DSN"

// Config 主配置
type Config struct {
	Node     *NodeConfig        `mapstructure:"node"`
	Scanner  *ScannerConfig     `mapstructure:"scanner"`
	Output   *OutputConfig      `mapstructure:"output"`
	Snapshot *SnapshotConfig    `mapstructure:"snapshot"`
	Logging  *logging.LogConfig `mapstructure:"logging"`
}

// NodeConfig 节点配置
type NodeConfig struct {
	Name      string            `mapstructure:"name"`
	URL       string            `mapstructure:"url"`
	RateLimit int               `mapstructure:"rate_limit"` // 每秒请求数，0 表示不限制
	Timeout   string            `mapstructure:"timeout"`
	Headers   map[string]string `mapstructure:"headers"`
}

// ScannerConfig 扫描器配置
type ScannerConfig struct {
	StartBlock     uint64 `mapstructure:"start_block"`
	EndBlock       uint64 `mapstructure:"end_block"`
	Workers        int    `mapstructure:"workers"`
	TraceMode      string `mapstructure:"trace_mode"`
	CreationTarget string `mapstructure:"creation_target"`
	CacheSizeMB    int    `mapstructure:"cache_size_mb"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string          `mapstructure:"brokers"`
	Topics  map[string]string `mapstructure:"topics"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Format        string       `mapstructure:"format"`
	Directory     string       `mapstructure:"directory"`
	ContractsFile string       `mapstructure:"contracts_file"`
	WalletsFile   string       `mapstructure:"wallets_file"`
	Kafka         *KafkaConfig `mapstructure:"kafka"`
}

// SnapshotConfig 扫描快照配置
type SnapshotConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// 扫描器限制
const (
	MaxWorkers = 64
)

// LoadConfig 加载配置（自动检测配置源）
func LoadConfig(configPath string) (*Config, error) {
	if dsn := os.Getenv(DBDSNEnv); dsn != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		defer dbConfig.Close()

		cfg, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		logger.Info("已从数据库加载配置")
		return cfg, nil
	}

	if configPath == "" {
		return GetDefaultConfig(), nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig(), nil
	}

	return LoadConfigFromFile(configPath)
}

// LoadConfigFromFile 从文件加载配置，未出现的字段保留默认值
func LoadConfigFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := GetDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return cfg, nil
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Node: &NodeConfig{
			Name:      "local_node",
			URL:       "http://localhost:8545",
			RateLimit: 0,
			Timeout:   "30s",
		},
		Scanner: &ScannerConfig{
			StartBlock:     100,
			EndBlock:       200,
			Workers:        4,
			TraceMode:      TraceModeShallow,
			CreationTarget: CreationTargetCreator,
			CacheSizeMB:    16,
		},
		Output: &OutputConfig{
			Format:        OutputFormatCSV,
			Directory:     ".",
			ContractsFile: "contract_interactions.csv",
			WalletsFile:   "wallet_balances.csv",
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: map[string]string{
					"contracts": "ethrank_contract_interactions",
					"wallets":   "ethrank_wallet_balances",
				},
			},
		},
		Snapshot: &SnapshotConfig{
			Enabled: true,
			Path:    "./data/snapshots.db",
		},
		Logging: &logging.LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("配置不能为空")
	}
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("节点配置无效: %w", err)
	}
	if err := c.Scanner.Validate(); err != nil {
		return fmt.Errorf("扫描器配置无效: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("输出配置无效: %w", err)
	}
	if c.Snapshot != nil && c.Snapshot.Enabled && c.Snapshot.Path == "" {
		return fmt.Errorf("快照配置无效: 启用快照时必须指定路径")
	}
	if c.Logging != nil {
		if err := logging.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("日志配置无效: %w", err)
		}
	}
	return nil
}

// Validate 校验节点配置
func (n *NodeConfig) Validate() error {
	if n == nil {
		return fmt.Errorf("缺少节点配置")
	}
	if n.URL == "" {
		return fmt.Errorf("节点URL不能为空")
	}
	u, err := url.Parse(n.URL)
	if err != nil {
		return fmt.Errorf("节点URL格式错误: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("不支持的节点URL协议: %q", u.Scheme)
	}
	if n.RateLimit < 0 {
		return fmt.Errorf("速率限制不能为负数: %d", n.RateLimit)
	}
	if _, err := n.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration 解析请求超时
func (n *NodeConfig) TimeoutDuration() (time.Duration, error) {
	if n.Timeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		return 0, fmt.Errorf("超时格式错误 %q: %w", n.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("超时必须为正数: %s", n.Timeout)
	}
	return d, nil
}

// Validate 校验扫描器配置
func (s *ScannerConfig) Validate() error {
	if s == nil {
		return fmt.Errorf("缺少扫描器配置")
	}
	if err := ValidateRange(s.StartBlock, s.EndBlock); err != nil {
		return err
	}
	if s.Workers <= 0 || s.Workers > MaxWorkers {
		return fmt.Errorf("工作协程数必须在1-%d之间，当前值: %d", MaxWorkers, s.Workers)
	}
	switch s.TraceMode {
	case TraceModeShallow, TraceModeRecursive:
	default:
		return fmt.Errorf("不支持的追踪模式: %q", s.TraceMode)
	}
	switch s.CreationTarget {
	case CreationTargetCreator, CreationTargetDeployed:
	default:
		return fmt.Errorf("不支持的合约创建目标: %q", s.CreationTarget)
	}
	if s.CacheSizeMB <= 0 {
		return fmt.Errorf("缓存大小必须为正数: %d", s.CacheSizeMB)
	}
	return nil
}

// ValidateRange 校验区块范围（闭区间）
func ValidateRange(startBlock, endBlock uint64) error {
	if startBlock > endBlock {
		return fmt.Errorf("起始区块号(%d)不能大于结束区块号(%d)", startBlock, endBlock)
	}
	return nil
}

// Validate 校验输出配置
func (o *OutputConfig) Validate() error {
	if o == nil {
		return fmt.Errorf("缺少输出配置")
	}
	switch o.Format {
	case OutputFormatCSV:
		if o.ContractsFile == "" || o.WalletsFile == "" {
			return fmt.Errorf("CSV输出需要指定合约与钱包文件名")
		}
	case OutputFormatKafka:
		if o.Kafka == nil || len(o.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka输出需要至少一个broker")
		}
		for _, key := range []string{"contracts", "wallets"} {
			if o.Kafka.Topics[key] == "" {
				return fmt.Errorf("kafka输出缺少topic: %s", key)
			}
		}
	default:
		return fmt.Errorf("不支持的输出格式: %q", o.Format)
	}
	return nil
}

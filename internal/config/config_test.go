package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	config := GetDefaultConfig()

	assert.NotNil(t, config)
	assert.NotNil(t, config.Node)
	assert.NotNil(t, config.Scanner)
	assert.NotNil(t, config.Output)
	assert.NotNil(t, config.Snapshot)
	assert.NotNil(t, config.Logging)

	// 节点配置
	assert.Equal(t, "local_node", config.Node.Name)
	assert.Equal(t, "http://localhost:8545", config.Node.URL)
	assert.Equal(t, 0, config.Node.RateLimit)

	// 扫描器配置
	assert.Equal(t, uint64(100), config.Scanner.StartBlock)
	assert.Equal(t, uint64(200), config.Scanner.EndBlock)
	assert.Equal(t, 4, config.Scanner.Workers)
	assert.Equal(t, TraceModeShallow, config.Scanner.TraceMode)
	assert.Equal(t, CreationTargetCreator, config.Scanner.CreationTarget)

	// 输出配置
	assert.Equal(t, OutputFormatCSV, config.Output.Format)
	assert.Equal(t, "contract_interactions.csv", config.Output.ContractsFile)
	assert.Equal(t, "wallet_balances.csv", config.Output.WalletsFile)
	assert.Equal(t, []string{"localhost:9092"}, config.Output.Kafka.Brokers)

	assert.NoError(t, config.Validate())
}

func TestLoadConfig_MissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv(DBDSNEnv, "")

	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), config)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
node:
  url: "https://rpc.example.org"
  rate_limit: 25
  timeout: "10s"
scanner:
  start_block: 1000
  end_block: 1010
  workers: 8
  trace_mode: "recursive"
output:
  format: "kafka"
  kafka:
    brokers: ["kafka-1:9092", "kafka-2:9092"]
    topics:
      contracts: "contracts"
      wallets: "wallets"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.org", config.Node.URL)
	assert.Equal(t, 25, config.Node.RateLimit)
	assert.Equal(t, uint64(1000), config.Scanner.StartBlock)
	assert.Equal(t, uint64(1010), config.Scanner.EndBlock)
	assert.Equal(t, 8, config.Scanner.Workers)
	assert.Equal(t, TraceModeRecursive, config.Scanner.TraceMode)
	// 文件中未出现的字段保留默认值
	assert.Equal(t, CreationTargetCreator, config.Scanner.CreationTarget)
	assert.Equal(t, 16, config.Scanner.CacheSizeMB)
	assert.Equal(t, OutputFormatKafka, config.Output.Format)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, config.Output.Kafka.Brokers)

	assert.NoError(t, config.Validate())
}

func TestLoadConfigFromFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node: [unclosed"), 0644))

	_, err := LoadConfigFromFile(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "默认配置",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "起始区块大于结束区块",
			mutate:  func(c *Config) { c.Scanner.StartBlock, c.Scanner.EndBlock = 10, 5 },
			wantErr: true,
		},
		{
			name:    "单区块范围",
			mutate:  func(c *Config) { c.Scanner.StartBlock, c.Scanner.EndBlock = 7, 7 },
			wantErr: false,
		},
		{
			name:    "工作协程数为零",
			mutate:  func(c *Config) { c.Scanner.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "工作协程数超过上限",
			mutate:  func(c *Config) { c.Scanner.Workers = MaxWorkers + 1 },
			wantErr: true,
		},
		{
			name:    "未知追踪模式",
			mutate:  func(c *Config) { c.Scanner.TraceMode = "deep" },
			wantErr: true,
		},
		{
			name:    "未知合约创建目标",
			mutate:  func(c *Config) { c.Scanner.CreationTarget = "nobody" },
			wantErr: true,
		},
		{
			name:    "空节点URL",
			mutate:  func(c *Config) { c.Node.URL = "" },
			wantErr: true,
		},
		{
			name:    "不支持的URL协议",
			mutate:  func(c *Config) { c.Node.URL = "ftp://node" },
			wantErr: true,
		},
		{
			name:    "错误的超时格式",
			mutate:  func(c *Config) { c.Node.Timeout = "soon" },
			wantErr: true,
		},
		{
			name:    "未知输出格式",
			mutate:  func(c *Config) { c.Output.Format = "parquet" },
			wantErr: true,
		},
		{
			name: "kafka缺少broker",
			mutate: func(c *Config) {
				c.Output.Format = OutputFormatKafka
				c.Output.Kafka.Brokers = nil
			},
			wantErr: true,
		},
		{
			name: "启用快照但无路径",
			mutate: func(c *Config) {
				c.Snapshot.Enabled = true
				c.Snapshot.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "未知日志级别",
			mutate:  func(c *Config) { c.Logging.Level = "chatty" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetDefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyScannerValues(t *testing.T) {
	cfg := GetDefaultConfig().Scanner
	applyScannerValues(cfg, map[string]string{
		"start_block":     "500",
		"end_block":       "600",
		"workers":         "not-a-number",
		"trace_mode":      TraceModeRecursive,
		"creation_target": CreationTargetDeployed,
	})

	assert.Equal(t, uint64(500), cfg.StartBlock)
	assert.Equal(t, uint64(600), cfg.EndBlock)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, TraceModeRecursive, cfg.TraceMode)
	assert.Equal(t, CreationTargetDeployed, cfg.CreationTarget)
}

func TestApplyOutputValues(t *testing.T) {
	cfg := GetDefaultConfig().Output
	applyOutputValues(cfg, map[string]string{
		"format":                OutputFormatKafka,
		"kafka_brokers":         `["k1:9092"]`,
		"kafka_topic_contracts": "c_topic",
	})

	assert.Equal(t, OutputFormatKafka, cfg.Format)
	assert.Equal(t, []string{"k1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "c_topic", cfg.Kafka.Topics["contracts"])
	assert.Equal(t, "ethrank_wallet_balances", cfg.Kafka.Topics["wallets"])
}

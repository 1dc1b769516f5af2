package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// LoadConfig 从数据库加载配置，表中缺失的项使用默认值
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	cfg := GetDefaultConfig()

	node, err := dc.loadNodeConfig()
	if err != nil {
		return nil, fmt.Errorf("加载节点配置失败: %w", err)
	}
	if node != nil {
		cfg.Node = node
	}

	if err := dc.loadScannerConfig(cfg.Scanner); err != nil {
		return nil, fmt.Errorf("加载扫描器配置失败: %w", err)
	}

	if err := dc.loadOutputConfig(cfg.Output); err != nil {
		return nil, fmt.Errorf("加载输出配置失败: %w", err)
	}

	return cfg, nil
}

// loadNodeConfig 加载优先级最高的可用节点
func (dc *DatabaseConfig) loadNodeConfig() (*NodeConfig, error) {
	query := `SELECT name, url, rate_limit, timeout FROM rpc_nodes WHERE is_active = true ORDER BY priority LIMIT 1`

	var node NodeConfig
	err := dc.DB.QueryRow(query).Scan(&node.Name, &node.URL, &node.RateLimit, &node.Timeout)
	if err == sql.ErrNoRows {
		dc.logger.Warn("数据库中没有可用节点，使用默认节点配置")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// loadKeyValues 读取键值配置表
func (dc *DatabaseConfig) loadKeyValues(table string) (map[string]string, error) {
	query := fmt.Sprintf(`SELECT config_key, config_value FROM %s WHERE is_active = true`, table)
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

// loadScannerConfig 加载扫描器配置
func (dc *DatabaseConfig) loadScannerConfig(cfg *ScannerConfig) error {
	values, err := dc.loadKeyValues("scanner_config")
	if err != nil {
		return err
	}
	applyScannerValues(cfg, values)
	return nil
}

// applyScannerValues 将键值应用到扫描器配置，无法解析的值被忽略
func applyScannerValues(cfg *ScannerConfig, values map[string]string) {
	for key, value := range values {
		switch key {
		case "start_block":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil {
				cfg.StartBlock = v
			}
		case "end_block":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil {
				cfg.EndBlock = v
			}
		case "workers":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.Workers = v
			}
		case "cache_size_mb":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.CacheSizeMB = v
			}
		case "trace_mode":
			cfg.TraceMode = value
		case "creation_target":
			cfg.CreationTarget = value
		}
	}
}

// loadOutputConfig 加载输出配置
func (dc *DatabaseConfig) loadOutputConfig(cfg *OutputConfig) error {
	values, err := dc.loadKeyValues("output_config")
	if err != nil {
		return err
	}
	applyOutputValues(cfg, values)
	return nil
}

// applyOutputValues 将键值应用到输出配置
func applyOutputValues(cfg *OutputConfig, values map[string]string) {
	for key, value := range values {
		switch key {
		case "format":
			cfg.Format = value
		case "directory":
			cfg.Directory = value
		case "contracts_file":
			cfg.ContractsFile = value
		case "wallets_file":
			cfg.WalletsFile = value
		case "kafka_brokers":
			var brokers []string
			if err := json.Unmarshal([]byte(value), &brokers); err == nil {
				if cfg.Kafka == nil {
					cfg.Kafka = &KafkaConfig{Topics: map[string]string{}}
				}
				cfg.Kafka.Brokers = brokers
			}
		case "kafka_topic_contracts", "kafka_topic_wallets":
			if cfg.Kafka == nil {
				cfg.Kafka = &KafkaConfig{}
			}
			if cfg.Kafka.Topics == nil {
				cfg.Kafka.Topics = map[string]string{}
			}
			if key == "kafka_topic_contracts" {
				cfg.Kafka.Topics["contracts"] = value
			} else {
				cfg.Kafka.Topics["wallets"] = value
			}
		}
	}
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}

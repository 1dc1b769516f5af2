package output

import (
	"encoding/json"
	"fmt"
	"time"

	"ethrank/pkg/models"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// 默认topic
const (
	defaultContractsTopic = "ethrank_contract_interactions"
	defaultWalletsTopic   = "ethrank_wallet_balances"
)

// contractMessage 合约排行消息
type contractMessage struct {
	Rank             int    `json:"rank"`
	Address          string `json:"address"`
	InteractionCount uint64 `json:"interaction_count"`
}

// walletMessage 钱包排行消息
type walletMessage struct {
	Rank       int    `json:"rank"`
	Address    string `json:"address"`
	BalanceETH string `json:"balance_eth"`
}

// KafkaOutput Kafka输出器，每行一条消息，以地址为key
type KafkaOutput struct {
	logger   *logrus.Logger
	topics   map[string]string
	producer sarama.SyncProducer
}

// NewKafkaOutput 创建Kafka输出器
func NewKafkaOutput(brokers []string, topics map[string]string, logger *logrus.Logger) (*KafkaOutput, error) {
	logger.Infof("初始化Kafka输出器，brokers: %v", brokers)

	// 配置Kafka生产者
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("Kafka生产者已创建")
	return NewKafkaOutputWithProducer(producer, topics, logger), nil
}

// NewKafkaOutputWithProducer 使用已有生产者创建输出器
func NewKafkaOutputWithProducer(producer sarama.SyncProducer, topics map[string]string, logger *logrus.Logger) *KafkaOutput {
	return &KafkaOutput{
		logger:   logger,
		topics:   topics,
		producer: producer,
	}
}

// topic 获取数据类型对应的topic
func (k *KafkaOutput) topic(kind, fallback string) string {
	if topic, exists := k.topics[kind]; exists && topic != "" {
		return topic
	}
	return fallback
}

// sendBatch 批量发送消息
func (k *KafkaOutput) sendBatch(topic string, keys []string, payloads []any) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(payloads))
	for i, payload := range payloads {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("序列化数据失败: %w", err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.StringEncoder(keys[i]),
			Value: sarama.ByteEncoder(data),
		})
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := k.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("发送消息到Kafka失败: %w", err)
	}

	k.logger.Infof("成功发送 %d 条消息到Kafka topic '%s'", len(msgs), topic)
	return nil
}

// WriteContractInteractions 发送合约排行
func (k *KafkaOutput) WriteContractInteractions(rows []models.ContractInteraction) error {
	keys := make([]string, len(rows))
	payloads := make([]any, len(rows))
	for i, row := range rows {
		addr := models.FormatAddress(row.Address)
		keys[i] = addr
		payloads[i] = contractMessage{Rank: i + 1, Address: addr, InteractionCount: row.Count}
	}
	return k.sendBatch(k.topic("contracts", defaultContractsTopic), keys, payloads)
}

// WriteWalletBalances 发送钱包排行
func (k *KafkaOutput) WriteWalletBalances(rows []models.WalletBalance) error {
	keys := make([]string, len(rows))
	payloads := make([]any, len(rows))
	for i, row := range rows {
		addr := models.FormatAddress(row.Address)
		keys[i] = addr
		payloads[i] = walletMessage{Rank: i + 1, Address: addr, BalanceETH: row.Balance.String()}
	}
	return k.sendBatch(k.topic("wallets", defaultWalletsTopic), keys, payloads)
}

// Close 关闭Kafka连接
func (k *KafkaOutput) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}

package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"ethrank/internal/config"
	"ethrank/internal/logging"
	scanerrors "ethrank/internal/errors"
	"ethrank/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// 使用到的JSON-RPC方法
const (
	MethodGetBlockByNumber = "eth_getBlockByNumber"
	MethodGetCode          = "eth_getCode"
	MethodGetBalance       = "eth_getBalance"
	MethodTraceTransaction = "debug_traceTransaction"
)

// Client 单节点JSON-RPC客户端
type Client struct {
	name    string
	url     string
	rpc     *rpc.Client
	eth     *ethclient.Client
	limiter *rate.Limiter
	logger  *logrus.Logger

	structured *logging.StructuredLogger
}

// Dial 连接节点。HTTP节点在首次请求前不会建立连接
func Dial(ctx context.Context, node *config.NodeConfig, logger *logrus.Logger) (*Client, error) {
	if node == nil || node.URL == "" {
		return nil, fmt.Errorf("节点URL不能为空")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	timeout, err := node.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	headers := make(http.Header, len(node.Headers))
	for k, v := range node.Headers {
		headers.Set(k, v)
	}

	rpcClient, err := rpc.DialOptions(ctx, node.URL,
		rpc.WithHTTPClient(&http.Client{Timeout: timeout}),
		rpc.WithHeaders(headers),
	)
	if err != nil {
		return nil, fmt.Errorf("连接节点失败: %w", err)
	}

	var limiter *rate.Limiter
	if node.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(node.RateLimit), node.RateLimit)
	}

	return &Client{
		name:    node.Name,
		url:     node.URL,
		rpc:     rpcClient,
		eth:     ethclient.NewClient(rpcClient),
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Name 节点名称
func (c *Client) Name() string {
	return c.name
}

// SetStructuredLogger 设置逐次调用的结构化日志器
func (c *Client) SetStructuredLogger(l *logging.StructuredLogger) {
	c.structured = l
}

// URL 节点地址
func (c *Client) URL() string {
	return c.url
}

// call 发送一次请求并返回原始结果，错误按传输/远端/格式分类
func (c *Client) call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, scanerrors.NewTransportError(method, err)
		}
	}

	start := time.Now()
	var raw json.RawMessage
	err := c.rpc.CallContext(ctx, &raw, method, args...)
	elapsed := time.Since(start)
	c.logger.Debugf("RPC %s 耗时 %v", method, elapsed)
	if c.structured != nil {
		rpcLog := logging.NewRPCLogger(c.structured, method, c.url)
		if err != nil {
			rpcLog.Warn("RPC调用失败", "duration_ms", elapsed.Milliseconds(), "error", err.Error())
		} else {
			rpcLog.Debug("RPC调用完成", "duration_ms", elapsed.Milliseconds(), "bytes", len(raw))
		}
	}

	if err != nil {
		var rpcErr rpc.Error
		switch {
		case errors.As(err, &rpcErr):
			return nil, scanerrors.NewRemoteError(method, err)
		case errors.Is(err, rpc.ErrNoResult):
			return nil, scanerrors.NewMalformedError(method, err)
		default:
			return nil, scanerrors.NewTransportError(method, err)
		}
	}
	return raw, nil
}

// isNull 结果是否为JSON null
func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// rpcBlock eth_getBlockByNumber 返回的区块（仅解析所需字段）
type rpcBlock struct {
	Number       hexutil.Uint64   `json:"number"`
	Hash         common.Hash      `json:"hash"`
	Transactions []rpcTransaction `json:"transactions"`
}

// rpcTransaction 完整交易对象
type rpcTransaction struct {
	Hash             common.Hash     `json:"hash"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
}

// BlockByNumber 获取包含完整交易的区块，区块不存在时返回 nil, nil
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*models.Block, error) {
	raw, err := c.call(ctx, MethodGetBlockByNumber, hexutil.EncodeUint64(number), true)
	if err != nil {
		if scanErr, ok := scanerrors.As(err); ok {
			scanErr.WithBlockNumber(number)
		}
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}

	var head rpcBlock
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, scanerrors.NewMalformedError(MethodGetBlockByNumber, err).WithBlockNumber(number)
	}

	block := &models.Block{
		Number:       uint64(head.Number),
		Hash:         head.Hash.Hex(),
		Transactions: make([]*models.Transaction, 0, len(head.Transactions)),
	}
	for i, tx := range head.Transactions {
		index := i
		if tx.TransactionIndex != nil {
			index = int(*tx.TransactionIndex)
		}
		block.Transactions = append(block.Transactions, &models.Transaction{
			Hash:  tx.Hash,
			From:  tx.From,
			To:    tx.To,
			Nonce: uint64(tx.Nonce),
			Index: index,
		})
	}
	return block, nil
}

// CodeAt 获取地址在最新状态下的代码，空代码返回空切片
func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	raw, err := c.call(ctx, MethodGetCode, addr, "latest")
	if err != nil {
		if scanErr, ok := scanerrors.As(err); ok {
			scanErr.WithAddress(addr)
		}
		return nil, err
	}

	var code hexutil.Bytes
	if err := json.Unmarshal(raw, &code); err != nil {
		return nil, scanerrors.NewMalformedError(MethodGetCode, err).WithAddress(addr)
	}
	return code, nil
}

// BalanceAt 获取地址在最新状态下的余额（wei）
func (c *Client) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	raw, err := c.call(ctx, MethodGetBalance, addr, "latest")
	if err != nil {
		if scanErr, ok := scanerrors.As(err); ok {
			scanErr.WithAddress(addr)
		}
		return nil, err
	}

	var balance hexutil.Big
	if err := json.Unmarshal(raw, &balance); err != nil {
		return nil, scanerrors.NewMalformedError(MethodGetBalance, err).WithAddress(addr)
	}
	return balance.ToInt(), nil
}

// TraceTransaction 使用 callTracer 追踪交易，无追踪结果时返回 nil, nil
func (c *Client) TraceTransaction(ctx context.Context, txHash common.Hash) (*models.CallFrame, error) {
	raw, err := c.call(ctx, MethodTraceTransaction, txHash, map[string]any{
		"tracer": "callTracer",
	})
	if err != nil {
		if scanErr, ok := scanerrors.As(err); ok {
			scanErr.WithTxHash(txHash)
		}
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}

	var frame models.CallFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, scanerrors.NewMalformedError(MethodTraceTransaction, err).WithTxHash(txHash)
	}
	return &frame, nil
}

// Ping 检查节点可用性并返回最新区块号
func (c *Client) Ping(ctx context.Context) (uint64, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, scanerrors.NewTransportError("eth_blockNumber", err)
		}
	}
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, scanerrors.NewTransportError("eth_blockNumber", err)
	}
	return head, nil
}

// Close 关闭客户端
func (c *Client) Close() {
	c.rpc.Close()
}

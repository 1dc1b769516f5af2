package scanner

import (
	"context"
	"math/big"

	"ethrank/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

// BlockFetcher 按高度获取区块，区块尚未产生时返回 nil, nil
type BlockFetcher interface {
	BlockByNumber(ctx context.Context, number uint64) (*models.Block, error)
}

// CodeReader 读取地址代码
type CodeReader interface {
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
}

// CallTracer 获取交易的调用树
type CallTracer interface {
	TraceTransaction(ctx context.Context, txHash common.Hash) (*models.CallFrame, error)
}

// BalanceReader 读取地址余额（wei）
type BalanceReader interface {
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
}

// Node 扫描所需的全部节点能力，由 connection.Client 实现
type Node interface {
	BlockFetcher
	CodeReader
	CallTracer
	BalanceReader
}

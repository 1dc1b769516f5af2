package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CallFrame callTracer 返回的调用帧
type CallFrame struct {
	Type  string      `json:"type"`
	From  string      `json:"from"`
	To    string      `json:"to,omitempty"`
	Error string      `json:"error,omitempty"`
	Calls []CallFrame `json:"calls,omitempty"`
}

// ContractInteraction 合约交互排行行
type ContractInteraction struct {
	Address common.Address `json:"address"`
	Count   uint64         `json:"interaction_count"`
}

// WalletBalance 钱包余额排行行
type WalletBalance struct {
	Address common.Address  `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

// Report 一次区块范围扫描的完整结果
type Report struct {
	StartBlock       uint64                `json:"start_block"`
	EndBlock         uint64                `json:"end_block"`
	Contracts        []ContractInteraction `json:"contracts"`
	Wallets          []WalletBalance       `json:"wallets"`
	ScannedBlocks    uint64                `json:"scanned_blocks"`
	AbsentBlocks     uint64                `json:"absent_blocks"`
	Transactions     uint64                `json:"transactions"`
	BalancesResolved bool                  `json:"balances_resolved"`
	Partial          bool                  `json:"partial"`     // 扫描因致命错误中断
	FailureReason    string                `json:"failure_reason,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

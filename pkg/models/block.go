package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block 区块数据模型（仅保留交易对手分类所需字段）
type Block struct {
	Number       uint64         `json:"block_number"`
	Hash         string         `json:"hash"`
	Transactions []*Transaction `json:"transactions"`
}

// TransactionCount 区块交易数
func (b *Block) TransactionCount() int {
	if b == nil {
		return 0
	}
	return len(b.Transactions)
}

// Transaction 交易数据模型
type Transaction struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"` // nil 表示合约创建
	Nonce uint64          `json:"nonce"`
	Index int             `json:"transaction_index"`
}

// IsContractCreation 是否为合约创建交易
func (t *Transaction) IsContractCreation() bool {
	return t.To == nil
}

// FormatAddress 地址的规范化表示（小写十六进制，带0x前缀）
func FormatAddress(addr common.Address) string {
	return hexutil.Encode(addr.Bytes())
}

package models

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestBlock_TransactionCount(t *testing.T) {
	var absent *Block
	assert.Equal(t, 0, absent.TransactionCount())

	block := &Block{Transactions: []*Transaction{{}, {To: nil}}}
	assert.Equal(t, 2, block.TransactionCount())
	assert.True(t, block.Transactions[1].IsContractCreation())
}

func TestFormatAddress_Lowercase(t *testing.T) {
	checksummed := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", FormatAddress(checksummed))
	assert.Equal(t, checksummed, common.HexToAddress("0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED"))
}

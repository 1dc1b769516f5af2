package scanner

import (
	"cmp"
	"slices"

	"ethrank/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Entry 排行榜中的一项
type Entry[K any, V any] struct {
	Key   K
	Value V
}

// RankByValueDescending 按值降序稳定排序，值相等的项保持输入顺序。不修改入参
func RankByValueDescending[K any, V any](entries []Entry[K, V], compare func(a, b V) int) []Entry[K, V] {
	ranked := slices.Clone(entries)
	slices.SortStableFunc(ranked, func(a, b Entry[K, V]) int {
		return compare(b.Value, a.Value)
	})
	return ranked
}

// RankContracts 合约按交互次数降序
func RankContracts(entries []Entry[common.Address, uint64]) []models.ContractInteraction {
	ranked := RankByValueDescending(entries, cmp.Compare[uint64])

	rows := make([]models.ContractInteraction, len(ranked))
	for i, e := range ranked {
		rows[i] = models.ContractInteraction{Address: e.Key, Count: e.Value}
	}
	return rows
}

// RankWallets 钱包按余额降序
func RankWallets(balances []models.WalletBalance) []models.WalletBalance {
	entries := make([]Entry[common.Address, decimal.Decimal], len(balances))
	for i, b := range balances {
		entries[i] = Entry[common.Address, decimal.Decimal]{Key: b.Address, Value: b.Balance}
	}

	ranked := RankByValueDescending(entries, func(a, b decimal.Decimal) int {
		return a.Cmp(b)
	})

	rows := make([]models.WalletBalance, len(ranked))
	for i, e := range ranked {
		rows[i] = models.WalletBalance{Address: e.Key, Balance: e.Value}
	}
	return rows
}

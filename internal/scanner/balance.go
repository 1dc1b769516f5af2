package scanner

import (
	"context"
	"math/big"

	"ethrank/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// etherExponent 1 ETH = 10^18 wei
const etherExponent = -18

// WeiToEther 精确换算，不做舍入
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, etherExponent)
}

// BalanceResolver 查询钱包余额，不缓存
type BalanceResolver struct {
	reader BalanceReader
}

// NewBalanceResolver 创建余额查询器
func NewBalanceResolver(reader BalanceReader) *BalanceResolver {
	return &BalanceResolver{reader: reader}
}

// ResolveBalance 查询单个地址在最新状态下的余额（ETH）
func (r *BalanceResolver) ResolveBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	wei, err := r.reader.BalanceAt(ctx, addr)
	if err != nil {
		return decimal.Zero, err
	}
	return WeiToEther(wei), nil
}

// ResolveAll 并发查询全部地址，结果顺序与入参一致。任一查询失败即取消其余查询
func (r *BalanceResolver) ResolveAll(ctx context.Context, addrs []common.Address, workers int) ([]models.WalletBalance, error) {
	if workers <= 0 {
		workers = 1
	}

	balances := make([]models.WalletBalance, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, addr := range addrs {
		g.Go(func() error {
			balance, err := r.ResolveBalance(gctx, addr)
			if err != nil {
				return err
			}
			balances[i] = models.WalletBalance{Address: addr, Balance: balance}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return balances, nil
}

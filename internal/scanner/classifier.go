package scanner

import (
	"context"
	"sync/atomic"

	"github.com/coocood/freecache"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

// 缓存值
const (
	walletFlag   byte = 0
	contractFlag byte = 1
)

// Classifier 判断地址是否为合约，单次扫描内按地址缓存结果
type Classifier struct {
	reader  CodeReader
	cache   *freecache.Cache
	group   singleflight.Group
	lookups atomic.Uint64
}

// NewClassifier 创建分类器，cacheSizeMB 为缓存容量
func NewClassifier(reader CodeReader, cacheSizeMB int) *Classifier {
	if cacheSizeMB <= 0 {
		cacheSizeMB = 1
	}
	return &Classifier{
		reader: reader,
		cache:  freecache.NewCache(cacheSizeMB * 1024 * 1024),
	}
}

// IsContract 代码非空即为合约。RPC错误直接返回，不视为非合约
func (c *Classifier) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	key := addr.Bytes()
	if value, err := c.cache.Get(key); err == nil && len(value) == 1 {
		return value[0] == contractFlag, nil
	}

	result, err, _ := c.group.Do(string(key), func() (any, error) {
		if value, err := c.cache.Get(key); err == nil && len(value) == 1 {
			return value[0] == contractFlag, nil
		}

		c.lookups.Add(1)
		code, err := c.reader.CodeAt(ctx, addr)
		if err != nil {
			return false, err
		}

		isContract := len(code) > 0
		flag := walletFlag
		if isContract {
			flag = contractFlag
		}
		// 缓存写入失败只影响性能
		_ = c.cache.Set(key, []byte{flag}, 0)
		return isContract, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// Lookups 实际发出的代码查询次数
func (c *Classifier) Lookups() uint64 {
	return c.lookups.Load()
}

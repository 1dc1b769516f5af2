package scanner

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// State 聚合器状态
type State int

const (
	StateIdle State = iota
	StateScanning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// 地址在交易中的角色
const (
	SlotFrom   = 0
	SlotTarget = 1
)

// Position 地址在顺序扫描中的出现位置，用于稳定排序的平局裁决
type Position struct {
	Block uint64
	Tx    int
	Slot  int
}

// Compare 按区块、交易、角色的顺序比较
func (p Position) Compare(o Position) int {
	switch {
	case p.Block != o.Block:
		if p.Block < o.Block {
			return -1
		}
		return 1
	case p.Tx != o.Tx:
		if p.Tx < o.Tx {
			return -1
		}
		return 1
	case p.Slot != o.Slot:
		if p.Slot < o.Slot {
			return -1
		}
		return 1
	}
	return 0
}

// Observation 一笔交易的分类结果
type Observation struct {
	Block         uint64
	Tx            int
	From          common.Address
	Target        common.Address
	IsContract    bool
	InternalCalls int
}

type tallyEntry struct {
	count uint64
	first Position
}

// ordered 带首次出现位置的值
type ordered[T any] struct {
	value T
	first Position
}

// Result 聚合结果，合约与钱包均按首次出现顺序排列
type Result struct {
	Contracts     []Entry[common.Address, uint64]
	Wallets       []common.Address
	ScannedBlocks uint64
	AbsentBlocks  uint64
	Transactions  uint64
}

// Stats 扫描进度
type Stats struct {
	State         State  `json:"-"`
	ScannedBlocks uint64 `json:"scanned_blocks"`
	AbsentBlocks  uint64 `json:"absent_blocks"`
	Transactions  uint64 `json:"transactions"`
	Contracts     int    `json:"contracts"`
	Wallets       int    `json:"wallets"`
}

// Aggregator 汇总合约交互计数与钱包集合，可被多个工作协程并发写入
type Aggregator struct {
	mu      sync.Mutex
	state   State
	tally   map[common.Address]*tallyEntry
	wallets map[common.Address]Position

	scannedBlocks uint64
	absentBlocks  uint64
	transactions  uint64
}

// NewAggregator 创建处于 Idle 状态的聚合器
func NewAggregator() *Aggregator {
	return &Aggregator{
		state:   StateIdle,
		tally:   make(map[common.Address]*tallyEntry),
		wallets: make(map[common.Address]Position),
	}
}

// Begin Idle -> Scanning
func (a *Aggregator) Begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateIdle {
		return fmt.Errorf("聚合器状态错误: 期望 %s，当前 %s", StateIdle, a.state)
	}
	a.state = StateScanning
	return nil
}

// State 当前状态
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Observe 应用一笔交易
func (a *Aggregator) Observe(obs Observation) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateScanning {
		return fmt.Errorf("聚合器未处于扫描状态: %s", a.state)
	}
	a.observeLocked(obs)
	a.transactions++
	return nil
}

// ObserveBlock 原子地应用一个区块的全部交易
func (a *Aggregator) ObserveBlock(number uint64, observations []Observation) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateScanning {
		return fmt.Errorf("聚合器未处于扫描状态: %s", a.state)
	}
	for _, obs := range observations {
		a.observeLocked(obs)
	}
	a.transactions += uint64(len(observations))
	a.scannedBlocks++
	return nil
}

// RecordAbsent 记录一个尚未产生的区块
func (a *Aggregator) RecordAbsent(number uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateScanning {
		return fmt.Errorf("聚合器未处于扫描状态: %s", a.state)
	}
	a.absentBlocks++
	return nil
}

func (a *Aggregator) observeLocked(obs Observation) {
	a.addWallet(obs.From, Position{Block: obs.Block, Tx: obs.Tx, Slot: SlotFrom})

	target := Position{Block: obs.Block, Tx: obs.Tx, Slot: SlotTarget}
	if !obs.IsContract {
		a.addWallet(obs.Target, target)
		return
	}

	entry, ok := a.tally[obs.Target]
	if !ok {
		entry = &tallyEntry{first: target}
		a.tally[obs.Target] = entry
	} else if target.Compare(entry.first) < 0 {
		entry.first = target
	}
	entry.count += 1 + uint64(obs.InternalCalls)
}

// addWallet 加入钱包集合，保留最早的出现位置
func (a *Aggregator) addWallet(addr common.Address, pos Position) {
	if first, ok := a.wallets[addr]; !ok || pos.Compare(first) < 0 {
		a.wallets[addr] = pos
	}
}

// Finish Scanning -> Done，返回最终结果
func (a *Aggregator) Finish() (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateScanning {
		return nil, fmt.Errorf("聚合器状态错误: 期望 %s，当前 %s", StateScanning, a.state)
	}
	a.state = StateDone
	return a.resultLocked(), nil
}

// Partial 返回当前已汇总的结果，不改变状态
func (a *Aggregator) Partial() *Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resultLocked()
}

// Stats 返回扫描进度
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Stats{
		State:         a.state,
		ScannedBlocks: a.scannedBlocks,
		AbsentBlocks:  a.absentBlocks,
		Transactions:  a.transactions,
		Contracts:     len(a.tally),
		Wallets:       len(a.wallets),
	}
}

// resultLocked 构造结果。已确认为合约的地址从钱包集合中移除
func (a *Aggregator) resultLocked() *Result {
	contracts := make([]ordered[Entry[common.Address, uint64]], 0, len(a.tally))
	for addr, entry := range a.tally {
		contracts = append(contracts, ordered[Entry[common.Address, uint64]]{
			value: Entry[common.Address, uint64]{Key: addr, Value: entry.count},
			first: entry.first,
		})
	}
	slices.SortFunc(contracts, func(x, y ordered[Entry[common.Address, uint64]]) int {
		return x.first.Compare(y.first)
	})

	wallets := make([]ordered[common.Address], 0, len(a.wallets))
	for addr, first := range a.wallets {
		if _, isContract := a.tally[addr]; isContract {
			continue
		}
		wallets = append(wallets, ordered[common.Address]{value: addr, first: first})
	}
	slices.SortFunc(wallets, func(x, y ordered[common.Address]) int {
		return x.first.Compare(y.first)
	})

	result := &Result{
		Contracts:     make([]Entry[common.Address, uint64], len(contracts)),
		Wallets:       make([]common.Address, len(wallets)),
		ScannedBlocks: a.scannedBlocks,
		AbsentBlocks:  a.absentBlocks,
		Transactions:  a.transactions,
	}
	for i, c := range contracts {
		result.Contracts[i] = c.value
	}
	for i, w := range wallets {
		result.Wallets[i] = w.value
	}
	return result
}

package scanner

import (
	"context"
	"fmt"

	"ethrank/internal/config"
	"ethrank/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

// TraceMode 内部调用计数方式
type TraceMode int

const (
	TraceShallow   TraceMode = iota // 只计直接子调用
	TraceRecursive                  // 计全部后代调用
)

// ParseTraceMode 解析配置中的追踪模式
func ParseTraceMode(s string) (TraceMode, error) {
	switch s {
	case "", config.TraceModeShallow:
		return TraceShallow, nil
	case config.TraceModeRecursive:
		return TraceRecursive, nil
	default:
		return TraceShallow, fmt.Errorf("不支持的追踪模式: %q", s)
	}
}

// String 返回配置中的名称
func (m TraceMode) String() string {
	if m == TraceRecursive {
		return config.TraceModeRecursive
	}
	return config.TraceModeShallow
}

// CountCalls 统计调用帧下的内部调用数，frame 为 nil 或无 calls 时为 0
func CountCalls(frame *models.CallFrame, mode TraceMode) int {
	if frame == nil {
		return 0
	}
	if mode == TraceShallow {
		return len(frame.Calls)
	}

	count := 0
	for i := range frame.Calls {
		count += 1 + CountCalls(&frame.Calls[i], mode)
	}
	return count
}

// TraceExpander 通过 callTracer 获取交易的内部调用数
type TraceExpander struct {
	tracer CallTracer
	mode   TraceMode
}

// NewTraceExpander 创建追踪展开器
func NewTraceExpander(tracer CallTracer, mode TraceMode) *TraceExpander {
	return &TraceExpander{tracer: tracer, mode: mode}
}

// InternalCallCount 返回交易的内部调用数
func (e *TraceExpander) InternalCallCount(ctx context.Context, txHash common.Hash) (int, error) {
	frame, err := e.tracer.TraceTransaction(ctx, txHash)
	if err != nil {
		return 0, err
	}
	return CountCalls(frame, e.mode), nil
}

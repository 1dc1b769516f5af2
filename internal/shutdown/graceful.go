package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// 停机顺序，数字越小越早执行
const (
	OrderStopAcceptingRequests = 10 // 停止接受新的扫描请求
	OrderStopScan              = 20 // 等待进行中的扫描退出
	OrderSaveSnapshot          = 30 // 保存扫描快照
	OrderFlushOutput           = 40 // 刷新并关闭输出
	OrderCloseConnections      = 50 // 关闭节点/数据库连接
)

// ShutdownFunc 停机处理函数
type ShutdownFunc struct {
	Name  string
	Func  func(ctx context.Context) error
	Order int
}

// GracefulShutdown 优雅停机管理器。收到信号时取消主上下文，停机函数由 Shutdown 按顺序执行
type GracefulShutdown struct {
	logger        *logrus.Logger
	timeout       time.Duration
	shutdownFuncs []ShutdownFunc
	mu            sync.Mutex
	signalChan    chan os.Signal
	stopChan      chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
	once          sync.Once
	shutdownErr   error
	stopOnce      sync.Once
}

// NewGracefulShutdown 创建优雅停机管理器
func NewGracefulShutdown(timeout time.Duration, logger *logrus.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &GracefulShutdown{
		logger:     logger,
		timeout:    timeout,
		signalChan: make(chan os.Signal, 1),
		stopChan:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// RegisterShutdownFunc 注册停机处理函数
func (gs *GracefulShutdown) RegisterShutdownFunc(name string, fn func(ctx context.Context) error, order int) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	gs.shutdownFuncs = append(gs.shutdownFuncs, ShutdownFunc{
		Name:  name,
		Func:  fn,
		Order: order,
	})
	gs.logger.Debugf("注册停机处理函数: %s (order: %d)", name, order)
}

// Start 开始监听 SIGINT/SIGTERM
func (gs *GracefulShutdown) Start() {
	signal.Notify(gs.signalChan, syscall.SIGINT, syscall.SIGTERM)
	go gs.signalHandler()
	gs.logger.Debug("优雅停机管理器已启动，监听信号: SIGINT, SIGTERM")
}

// signalHandler 收到信号后取消主上下文
func (gs *GracefulShutdown) signalHandler() {
	select {
	case sig := <-gs.signalChan:
		gs.logger.Warnf("收到停机信号: %v，正在停止扫描", sig)
		gs.cancel()
	case <-gs.stopChan:
	}
}

// Context 主上下文，收到信号或停机时取消
func (gs *GracefulShutdown) Context() context.Context {
	return gs.ctx
}

// Done 收到信号或停机时关闭
func (gs *GracefulShutdown) Done() <-chan struct{} {
	return gs.ctx.Done()
}

// Interrupted 是否已因信号或停机取消
func (gs *GracefulShutdown) Interrupted() bool {
	return gs.ctx.Err() != nil
}

// Shutdown 按顺序执行全部停机函数，只执行一次
func (gs *GracefulShutdown) Shutdown() error {
	gs.once.Do(func() {
		gs.shutdownErr = gs.performShutdown()
	})
	return gs.shutdownErr
}

// performShutdown 执行停机过程
func (gs *GracefulShutdown) performShutdown() error {
	gs.cancel()

	gs.mu.Lock()
	funcs := slices.Clone(gs.shutdownFuncs)
	gs.mu.Unlock()
	slices.SortStableFunc(funcs, func(a, b ShutdownFunc) int {
		return a.Order - b.Order
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gs.timeout)
	defer shutdownCancel()

	var shutdownErrors []error
	for _, fn := range funcs {
		if err := shutdownCtx.Err(); err != nil {
			gs.logger.Warn("停机超时，跳过剩余处理")
			shutdownErrors = append(shutdownErrors, fmt.Errorf("%s: %w", fn.Name, err))
			break
		}

		start := time.Now()
		if err := fn.Func(shutdownCtx); err != nil {
			gs.logger.Errorf("停机处理 '%s' 失败 (耗时: %v): %v", fn.Name, time.Since(start), err)
			shutdownErrors = append(shutdownErrors, fmt.Errorf("%s: %w", fn.Name, err))
			continue
		}
		gs.logger.Debugf("停机处理 '%s' 完成 (耗时: %v)", fn.Name, time.Since(start))
	}

	if len(shutdownErrors) > 0 {
		gs.logger.Errorf("停机过程中发生 %d 个错误", len(shutdownErrors))
	}
	return errors.Join(shutdownErrors...)
}

// GetRegisteredFunctions 获取已注册的停机函数列表
func (gs *GracefulShutdown) GetRegisteredFunctions() []string {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	names := make([]string, len(gs.shutdownFuncs))
	for i, fn := range gs.shutdownFuncs {
		names[i] = fn.Name
	}
	return names
}

// Close 停止信号监听并执行停机
func (gs *GracefulShutdown) Close() error {
	gs.stopOnce.Do(func() {
		signal.Stop(gs.signalChan)
		close(gs.stopChan)
	})
	return gs.Shutdown()
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"ethrank/internal/config"
	"ethrank/internal/output"
	"ethrank/internal/scanner"
	"ethrank/internal/snapshot"
	"ethrank/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ScanRunner 执行区块范围扫描
type ScanRunner interface {
	Scan(ctx context.Context, start, end uint64) (*models.Report, error)
	Stats() (scanner.Stats, bool)
}

// ReportStore 保存扫描报告
type ReportStore interface {
	Save(report *models.Report) (uint64, error)
	Latest() *snapshot.Snapshot
}

// Server API服务器
type Server struct {
	runner     ScanRunner
	store      ReportStore
	outputter  output.Output
	config     *config.Config
	logger     *logrus.Logger
	logManager *LogManager
	router     *gin.Engine
	server     *http.Server
	port       int
	startedAt  time.Time

	mu         sync.RWMutex
	wg         sync.WaitGroup
	isRunning  bool
	cancel     context.CancelFunc
	startBlock uint64
	endBlock   uint64
	lastError  string
	latest     *models.Report
}

// NewServer 创建API服务器。store 与 out 可以为 nil
func NewServer(cfg *config.Config, runner ScanRunner, store ReportStore, out output.Output, logger *logrus.Logger, port int) *Server {
	logManager := NewLogManager(1000)
	logger.AddHook(NewLogHook(logManager))

	s := &Server{
		runner:     runner,
		store:      store,
		outputter:  out,
		config:     cfg,
		logger:     logger,
		logManager: logManager,
		port:       port,
		startedAt:  time.Now(),
	}
	s.router = s.newRouter()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// newRouter 创建路由
func (s *Server) newRouter() *gin.Engine {
	router := gin.New()

	// CORS
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
	router.Use(gin.Recovery())

	s.setupRoutes(router)
	return router
}

// Handler 返回HTTP处理器
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动API服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	s.logger.Infof("API服务器启动在端口 %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止接受请求并取消进行中的扫描
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	return s.server.Shutdown(ctx)
}

// Wait 等待进行中的扫描结束
func (s *Server) Wait() {
	s.wg.Wait()
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)

	api := router.Group("/api/v1")
	{
		// 扫描控制
		api.GET("/status", s.getStatus)
		api.POST("/scan", s.startScan)
		api.POST("/stop", s.stopScan)

		// 报告
		api.GET("/reports/latest", s.getLatestReport)

		// 配置
		api.GET("/config", s.getConfig)

		// 日志管理
		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)
	}
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "ethrank-api",
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// getStatus 获取扫描状态
func (s *Server) getStatus(c *gin.Context) {
	s.mu.RLock()
	status := gin.H{
		"running":     s.isRunning,
		"start_block": s.startBlock,
		"end_block":   s.endBlock,
		"last_error":  s.lastError,
	}
	s.mu.RUnlock()

	if stats, ok := s.runner.Stats(); ok {
		status["state"] = stats.State.String()
		status["progress"] = stats
	} else {
		status["state"] = scanner.StateIdle.String()
	}

	c.JSON(http.StatusOK, status)
}

// scanRequest 扫描请求
type scanRequest struct {
	StartBlock *uint64 `json:"start_block"`
	EndBlock   *uint64 `json:"end_block"`
}

// startScan 启动扫描
func (s *Server) startScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StartBlock == nil || req.EndBlock == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "必须指定 start_block 和 end_block"})
		return
	}
	start, end := *req.StartBlock, *req.EndBlock
	if err := config.ValidateRange(start, end); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "扫描已在运行"})
		return
	}

	scanCtx, cancel := context.WithCancel(context.Background())
	s.isRunning = true
	s.cancel = cancel
	s.startBlock = start
	s.endBlock = end
	s.lastError = ""

	s.wg.Add(1)
	go s.runScan(scanCtx, cancel, start, end)

	c.JSON(http.StatusAccepted, gin.H{
		"message":     "扫描任务已启动",
		"status":      "started",
		"start_block": start,
		"end_block":   end,
	})
}

// runScan 执行扫描并保存结果
func (s *Server) runScan(ctx context.Context, cancel context.CancelFunc, start, end uint64) {
	defer s.wg.Done()
	defer cancel()

	s.logger.Infof("启动扫描: 区块 %d - %d", start, end)
	report, scanErr := s.runner.Scan(ctx, start, end)

	if report != nil && s.store != nil {
		if _, err := s.store.Save(report); err != nil {
			s.logger.Errorf("保存快照失败: %v", err)
		}
	}
	if scanErr == nil && s.outputter != nil {
		if err := output.WriteReport(s.outputter, report); err != nil {
			s.logger.Errorf("输出报告失败: %v", err)
			scanErr = err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRunning = false
	s.cancel = nil
	if report != nil {
		s.latest = report
	}
	if scanErr != nil {
		s.lastError = scanErr.Error()
		s.logger.Errorf("扫描失败: %v", scanErr)
		return
	}
	s.logger.Infof("扫描完成: %d 个合约, %d 个钱包", len(report.Contracts), len(report.Wallets))
}

// stopScan 停止扫描
func (s *Server) stopScan(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "扫描未在运行"})
		return
	}
	s.cancel()

	c.JSON(http.StatusOK, gin.H{
		"message": "扫描任务正在停止",
		"status":  "stopping",
	})
}

// getLatestReport 获取最新报告。快照与内存中的报告取较新者，保存快照失败时仍能返回最近一次结果
func (s *Server) getLatestReport(c *gin.Context) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if s.store != nil {
		snap := s.store.Latest()
		if snap != nil && (latest == nil || !latest.CreatedAt.After(snap.Report.CreatedAt)) {
			c.JSON(http.StatusOK, gin.H{
				"snapshot_id": snap.ID,
				"saved_at":    snap.SavedAt,
				"report":      snap.Report,
			})
			return
		}
	}

	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "暂无扫描报告"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": latest})
}

// redactedValue 替换请求头值，避免泄露节点认证信息
const redactedValue = "******"

// redactConfig 复制配置并隐藏节点请求头的值
func redactConfig(cfg *config.Config) *config.Config {
	if cfg == nil || cfg.Node == nil || len(cfg.Node.Headers) == 0 {
		return cfg
	}

	node := *cfg.Node
	node.Headers = make(map[string]string, len(cfg.Node.Headers))
	for k := range cfg.Node.Headers {
		node.Headers[k] = redactedValue
	}

	redacted := *cfg
	redacted.Node = &node
	return &redacted
}

// getConfig 获取配置
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config": redactConfig(s.config),
	})
}

// getLogs 获取日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")

	page := 1
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}
	pageSize := 20
	if ps, err := strconv.Atoi(c.Query("pageSize")); err == nil && ps > 0 {
		pageSize = ps
	}

	logs, total := s.logManager.GetLogsWithPagination(level, page, pageSize)

	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()

	c.JSON(http.StatusOK, gin.H{
		"message": "日志已清空",
	})
}

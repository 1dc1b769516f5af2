package api

import (
	"maps"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry 日志条目
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogManager 保存最近的进程日志，供 /api/v1/logs 查询
type LogManager struct {
	logs    []LogEntry
	maxLogs int
	mu      sync.RWMutex
}

// NewLogManager 创建日志管理器
func NewLogManager(maxLogs int) *LogManager {
	if maxLogs <= 0 {
		maxLogs = 1000
	}
	return &LogManager{
		logs:    make([]LogEntry, 0, maxLogs),
		maxLogs: maxLogs,
	}
}

// AddLog 添加日志，超过上限时丢弃最旧的条目
func (lm *LogManager) AddLog(entry *logrus.Entry) {
	logEntry := LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	if len(entry.Data) > 0 {
		logEntry.Fields = maps.Clone(map[string]any(entry.Data))
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if len(lm.logs) == lm.maxLogs {
		copy(lm.logs, lm.logs[1:])
		lm.logs = lm.logs[:len(lm.logs)-1]
	}
	lm.logs = append(lm.logs, logEntry)
}

// GetLogsWithPagination 按级别过滤后分页，返回当前页与过滤后的总数
func (lm *LogManager) GetLogsWithPagination(level string, page, pageSize int) ([]LogEntry, int) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	matched := make([]LogEntry, 0, len(lm.logs))
	for _, log := range lm.logs {
		if level == "" || log.Level == level {
			matched = append(matched, log)
		}
	}

	total := len(matched)
	start := (page - 1) * pageSize
	if start >= total {
		return []LogEntry{}, total
	}
	end := min(start+pageSize, total)
	return matched[start:end], total
}

// ClearLogs 清空日志
func (lm *LogManager) ClearLogs() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.logs = lm.logs[:0]
}

// LogHook 把 logrus 日志写入 LogManager
type LogHook struct {
	manager *LogManager
}

// NewLogHook 创建日志钩子
func NewLogHook(manager *LogManager) *LogHook {
	return &LogHook{manager: manager}
}

// Fire 实现 logrus.Hook 接口
func (h *LogHook) Fire(entry *logrus.Entry) error {
	h.manager.AddLog(entry)
	return nil
}

// Levels 实现 logrus.Hook 接口
func (h *LogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ethrank/internal/config"
	"ethrank/internal/scanner"
	"ethrank/internal/snapshot"
	"ethrank/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRunner 可控的扫描执行器
type fakeRunner struct {
	mu      sync.Mutex
	report  *models.Report
	err     error
	block   chan struct{} // 非nil时阻塞直到关闭或ctx取消
	calls   int
	scanned bool
}

func (r *fakeRunner) Scan(ctx context.Context, start, end uint64) (*models.Report, error) {
	r.mu.Lock()
	r.calls++
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return &models.Report{StartBlock: start, EndBlock: end, Partial: true}, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanned = true
	return r.report, r.err
}

func (r *fakeRunner) Stats() (scanner.Stats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.scanned {
		return scanner.Stats{}, false
	}
	return scanner.Stats{State: scanner.StateDone, ScannedBlocks: 1}, true
}

// memoryStore 内存报告存储
type memoryStore struct {
	mu      sync.Mutex
	saved   []*models.Report
	saveErr error
}

func (m *memoryStore) Save(report *models.Report) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	m.saved = append(m.saved, report)
	return uint64(len(m.saved)), nil
}

func (m *memoryStore) Latest() *snapshot.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return &snapshot.Snapshot{ID: uint64(len(m.saved)), Report: m.saved[len(m.saved)-1]}
}

func newTestServer(runner ScanRunner, store ReportStore) *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(config.GetDefaultConfig(), runner, store, nil, logger, 0)
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(&fakeRunner{}, nil)

	w := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestStartScan_Validation(t *testing.T) {
	s := newTestServer(&fakeRunner{}, nil)

	w := doRequest(t, s, http.MethodPost, "/api/v1/scan", map[string]any{"start_block": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, http.MethodPost, "/api/v1/scan", map[string]any{"start_block": 10, "end_block": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartScan_SavesReport(t *testing.T) {
	report := &models.Report{
		StartBlock: 100,
		EndBlock:   100,
		Contracts:  []models.ContractInteraction{{Address: common.HexToAddress("0x0a"), Count: 1}},
	}
	runner := &fakeRunner{report: report}
	store := &memoryStore{}
	s := newTestServer(runner, store)

	w := doRequest(t, s, http.MethodPost, "/api/v1/scan", map[string]any{"start_block": 100, "end_block": 100})
	require.Equal(t, http.StatusAccepted, w.Code)
	s.Wait()

	require.Len(t, store.saved, 1)
	assert.Same(t, report, store.saved[0])

	w = doRequest(t, s, http.MethodGet, "/api/v1/reports/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["snapshot_id"])

	w = doRequest(t, s, http.MethodGet, "/api/v1/status", nil)
	status := decode(t, w)
	assert.Equal(t, false, status["running"])
	assert.Equal(t, "done", status["state"])
	assert.Equal(t, "", status["last_error"])
}

func TestStartScan_ConflictAndStop(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	store := &memoryStore{}
	s := newTestServer(runner, store)

	w := doRequest(t, s, http.MethodPost, "/api/v1/scan", map[string]any{"start_block": 1, "end_block": 2})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doRequest(t, s, http.MethodPost, "/api/v1/scan", map[string]any{"start_block": 1, "end_block": 2})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, s, http.MethodPost, "/api/v1/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	s.Wait()

	// 中断后的部分报告同样保存
	require.Len(t, store.saved, 1)
	assert.True(t, store.saved[0].Partial)

	w = doRequest(t, s, http.MethodGet, "/api/v1/status", nil)
	assert.NotEmpty(t, decode(t, w)["last_error"])

	w = doRequest(t, s, http.MethodPost, "/api/v1/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLatestReport_NotFound(t *testing.T) {
	s := newTestServer(&fakeRunner{}, nil)

	w := doRequest(t, s, http.MethodGet, "/api/v1/reports/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLatestReport_InMemoryWithoutStore(t *testing.T) {
	runner := &fakeRunner{err: errors.New("node unreachable"), report: &models.Report{Partial: true}}
	s := newTestServer(runner, nil)

	doRequest(t, s, http.MethodPost, "/api/v1/scan", map[string]any{"start_block": 1, "end_block": 1})
	s.Wait()

	w := doRequest(t, s, http.MethodGet, "/api/v1/reports/latest", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogs(t *testing.T) {
	s := newTestServer(&fakeRunner{}, nil)
	s.logger.Info("first")
	s.logger.Warn("second")
	s.logger.WithField("block", 7).Info("third")

	w := doRequest(t, s, http.MethodGet, "/api/v1/logs?level=info&pageSize=1&page=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["total"])
	logs := body["logs"].([]any)
	require.Len(t, logs, 1)
	assert.Equal(t, "third", logs[0].(map[string]any)["message"])

	w = doRequest(t, s, http.MethodDelete, "/api/v1/logs", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/v1/logs", nil)
	assert.Equal(t, float64(0), decode(t, w)["total"])
}

func TestLogManager_DropsOldest(t *testing.T) {
	lm := NewLogManager(2)
	for _, msg := range []string{"a", "b", "c"} {
		lm.AddLog(&logrus.Entry{Message: msg, Level: logrus.InfoLevel})
	}

	logs, total := lm.GetLogsWithPagination("", 1, 10)
	assert.Equal(t, 2, total)
	assert.Equal(t, "b", logs[0].Message)
	assert.Equal(t, "c", logs[1].Message)
}

func TestLatestReport_NewerThanFailedSnapshot(t *testing.T) {
	older := &models.Report{StartBlock: 1, EndBlock: 1, CreatedAt: time.Now().Add(-time.Hour)}
	store := &memoryStore{saved: []*models.Report{older}, saveErr: errors.New("disk full")}
	newer := &models.Report{StartBlock: 2, EndBlock: 3, CreatedAt: time.Now()}
	s := newTestServer(&fakeRunner{report: newer}, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/reports/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["snapshot_id"])

	w = doRequest(t, s, http.MethodPost, "/api/v1/scan", map[string]any{"start_block": 2, "end_block": 3})
	require.Equal(t, http.StatusAccepted, w.Code)
	s.Wait()

	w = doRequest(t, s, http.MethodGet, "/api/v1/reports/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.NotContains(t, body, "snapshot_id")
	report := body["report"].(map[string]any)
	assert.Equal(t, float64(2), report["start_block"])
}

func TestGetConfig_RedactsNodeHeaders(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Node.Headers = map[string]string{"Authorization": "Bearer secret-token"}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := NewServer(cfg, &fakeRunner{}, nil, nil, logger, 0)

	w := doRequest(t, s, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, strings.Contains(w.Body.String(), "secret-token"))

	body := decode(t, w)
	node := body["config"].(map[string]any)["Node"].(map[string]any)
	headers := node["Headers"].(map[string]any)
	assert.Equal(t, redactedValue, headers["Authorization"])
	assert.Equal(t, cfg.Node.URL, node["URL"])

	// 原配置不受影响
	assert.Equal(t, "Bearer secret-token", cfg.Node.Headers["Authorization"])
}

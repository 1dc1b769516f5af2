package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error"} {
		assert.NoError(t, ParseLevel(level), level)
	}
	assert.Error(t, ParseLevel("verbose"))
}

func TestNewStructuredLogger_InvalidConfig(t *testing.T) {
	_, err := NewStructuredLogger(&LogConfig{Level: "loud", Format: "json", Output: "stdout"})
	assert.Error(t, err)

	_, err = NewStructuredLogger(&LogConfig{Level: "info", Format: "xml", Output: "stdout"})
	assert.Error(t, err)
}

func TestStructuredLogger_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scan.log")

	logger, err := NewStructuredLogger(&LogConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	NewBlockLogger(logger, 100).Info("区块处理完成", "transactions", 3)
	NewBlockLogger(logger, 101).Debug("不应输出")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "区块处理完成", record["msg"])
	assert.Equal(t, "block_processor", record["component"])
	assert.Equal(t, float64(100), record["block_number"])
	assert.Equal(t, float64(3), record["transactions"])
}

func TestNewLogrusLogger(t *testing.T) {
	logger := NewLogrusLogger(&LogConfig{Level: "warn", Format: "text", Output: "stderr"}, false)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	verbose := NewLogrusLogger(&LogConfig{Level: "warn", Format: "json", Output: "stderr"}, true)
	assert.Equal(t, logrus.DebugLevel, verbose.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, verbose.Formatter)

	fallback := NewLogrusLogger(nil, false)
	assert.Equal(t, logrus.InfoLevel, fallback.GetLevel())
}

func TestComponentLoggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "component.log")

	logger, err := NewStructuredLogger(&LogConfig{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	NewScanLogger(logger, 10, 20).Error("扫描失败", "error", "boom")
	NewRPCLogger(logger, "eth_getCode", "http://node:8545").Warn("RPC调用失败")
	NewRPCLogger(logger, "eth_getCode", "http://node:8545").Info("不应输出")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var scan, rpc map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &scan))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rpc))

	assert.Equal(t, "scanner", scan["component"])
	assert.Equal(t, float64(10), scan["start_block"])
	assert.Equal(t, float64(20), scan["end_block"])
	assert.Equal(t, "ERROR", scan["level"])

	assert.Equal(t, "rpc_client", rpc["component"])
	assert.Equal(t, "eth_getCode", rpc["method"])
	assert.Equal(t, "http://node:8545", rpc["node_url"])
	assert.Equal(t, "WARN", rpc["level"])
}

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScanError(t *testing.T) {
	err := NewScanError(ErrorTypeValidation, SeverityMedium, "TEST_ERROR", "测试错误")

	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, SeverityMedium, err.Severity)
	assert.Equal(t, "TEST_ERROR", err.Code)
	assert.Equal(t, "测试错误", err.Message)
	assert.False(t, err.Timestamp.IsZero())
	assert.False(t, err.IsFatal())
}

func TestScanError_Error(t *testing.T) {
	err := NewScanError(ErrorTypeConfig, SeverityLow, "TEST_CODE", "测试消息")
	assert.Equal(t, "[TEST_CODE] 测试消息", err.Error())

	wrapped := WrapError(errors.New("原始错误"), ErrorTypeConfig, SeverityLow, "TEST_CODE", "测试消息")
	assert.Equal(t, "[TEST_CODE] 测试消息: 原始错误", wrapped.Error())
}

func TestScanError_Unwrap(t *testing.T) {
	original := errors.New("connection refused")
	err := NewTransportError("eth_getCode", original)

	assert.ErrorIs(t, err, original)
	assert.Equal(t, "eth_getCode", err.Method)
	assert.True(t, err.IsFatal())
}

func TestAsThroughWrapping(t *testing.T) {
	inner := NewMalformedError("eth_getBalance", errors.New("invalid hex"))
	outer := fmt.Errorf("解析余额失败: %w", inner)

	scanErr, ok := As(outer)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeMalformed, scanErr.Type)
	assert.True(t, IsType(outer, ErrorTypeMalformed))
	assert.False(t, IsType(outer, ErrorTypeTransport))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeMalformed))
}

func TestScanError_Context(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	hash := common.HexToHash("0x01")

	err := NewRemoteError("debug_traceTransaction", errors.New("method not found")).
		WithBlockNumber(100).
		WithTxHash(hash).
		WithAddress(addr)

	require.NotNil(t, err.BlockNumber)
	assert.Equal(t, uint64(100), *err.BlockNumber)
	assert.Equal(t, hash.Hex(), *err.TxHash)
	assert.Equal(t, addr.Hex(), *err.Address)
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "Transport", ErrorTypeTransport.String())
	assert.Equal(t, "Malformed", ErrorTypeMalformed.String())
	assert.Equal(t, "Unknown(99)", ErrorType(99).String())
	assert.Equal(t, "Critical", SeverityCritical.String())
}

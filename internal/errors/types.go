package errors

import (
	goerrors "errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 节点访问相关错误
	ErrorTypeTransport ErrorType = iota // 网络不可达、HTTP错误、响应无法解析
	ErrorTypeRemote                     // 节点返回JSON-RPC错误对象

	// 数据相关错误
	ErrorTypeMalformed // 余额/代码/区块字段中的十六进制格式错误
	ErrorTypeValidation

	// 系统相关错误
	ErrorTypeConfig
	ErrorTypeOutput
	ErrorTypeSnapshot
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// ScanError 扫描过程中的错误
type ScanError struct {
	Type        ErrorType     `json:"type"`
	Severity    ErrorSeverity `json:"severity"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Timestamp   time.Time     `json:"timestamp"`
	Cause       error         `json:"-"`
	Method      string        `json:"method,omitempty"`
	BlockNumber *uint64       `json:"block_number,omitempty"`
	TxHash      *string       `json:"tx_hash,omitempty"`
	Address     *string       `json:"address,omitempty"`
}

// Error 实现error接口
func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// IsFatal 是否终止扫描。没有重试，所有已分类的错误都是致命的
func (e *ScanError) IsFatal() bool {
	return e.Severity >= SeverityHigh
}

// WithMethod 添加RPC方法名
func (e *ScanError) WithMethod(method string) *ScanError {
	e.Method = method
	return e
}

// WithBlockNumber 添加区块号
func (e *ScanError) WithBlockNumber(blockNumber uint64) *ScanError {
	e.BlockNumber = &blockNumber
	return e
}

// WithTxHash 添加交易哈希
func (e *ScanError) WithTxHash(txHash common.Hash) *ScanError {
	hash := txHash.Hex()
	e.TxHash = &hash
	return e
}

// WithAddress 添加地址
func (e *ScanError) WithAddress(addr common.Address) *ScanError {
	s := addr.Hex()
	e.Address = &s
	return e
}

// NewScanError 创建新的错误
func NewScanError(errorType ErrorType, severity ErrorSeverity, code, message string) *ScanError {
	return &ScanError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *ScanError {
	e := NewScanError(errorType, severity, code, message)
	e.Cause = err
	return e
}

// NewTransportError 节点传输失败
func NewTransportError(method string, err error) *ScanError {
	return WrapError(err, ErrorTypeTransport, SeverityCritical, "RPC_TRANSPORT_FAILED", "节点请求失败").WithMethod(method)
}

// NewRemoteError 节点返回错误对象
func NewRemoteError(method string, err error) *ScanError {
	return WrapError(err, ErrorTypeRemote, SeverityHigh, "RPC_REMOTE_ERROR", "节点返回错误").WithMethod(method)
}

// NewMalformedError 响应字段格式错误
func NewMalformedError(method string, err error) *ScanError {
	return WrapError(err, ErrorTypeMalformed, SeverityHigh, "MALFORMED_RESPONSE", "响应数据格式错误").WithMethod(method)
}

// As 提取错误链中的ScanError
func As(err error) (*ScanError, bool) {
	var scanErr *ScanError
	if goerrors.As(err, &scanErr) {
		return scanErr, true
	}
	return nil, false
}

// IsType 判断错误链中是否包含指定类型的ScanError
func IsType(err error, errorType ErrorType) bool {
	scanErr, ok := As(err)
	return ok && scanErr.Type == errorType
}

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeTransport:  "Transport",
	ErrorTypeRemote:     "Remote",
	ErrorTypeMalformed:  "Malformed",
	ErrorTypeValidation: "Validation",
	ErrorTypeConfig:     "Config",
	ErrorTypeOutput:     "Output",
	ErrorTypeSnapshot:   "Snapshot",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

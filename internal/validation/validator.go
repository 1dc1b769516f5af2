package validation

import (
	"fmt"

	scanerrors "ethrank/internal/errors"
	"ethrank/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Validator 节点返回数据的校验器
type Validator struct {
	logger     *logrus.Logger
	strictMode bool // 严格模式下警告也视为无效
	rules      []BlockRule
}

// BlockRule 区块校验规则
type BlockRule interface {
	Name() string
	Validate(requested uint64, block *models.Block, result *ValidationResult)
}

// ValidationResult 校验结果
type ValidationResult struct {
	Valid       bool                    `json:"valid"`
	BlockNumber uint64                  `json:"block_number"`
	Errors      []*scanerrors.ScanError `json:"errors,omitempty"`
	Warnings    []string                `json:"warnings,omitempty"`
}

// Err 第一个错误，校验通过时为 nil
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	if len(r.Errors) > 0 {
		return r.Errors[0]
	}
	return scanerrors.NewScanError(scanerrors.ErrorTypeValidation, scanerrors.SeverityHigh,
		"STRICT_VALIDATION_FAILED", fmt.Sprintf("严格模式下存在警告: %v", r.Warnings)).
		WithBlockNumber(r.BlockNumber)
}

func (r *ValidationResult) addError(code, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, scanerrors.NewScanError(scanerrors.ErrorTypeValidation,
		scanerrors.SeverityHigh, code, message).WithBlockNumber(r.BlockNumber))
}

func (r *ValidationResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// NewValidator 创建校验器并注册默认规则
func NewValidator(logger *logrus.Logger, strictMode bool) *Validator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	v := &Validator{
		logger:     logger,
		strictMode: strictMode,
	}

	v.AddRule(blockNumberRule{})
	v.AddRule(uniqueTxHashRule{})
	v.AddRule(txIndexRule{})
	return v
}

// AddRule 添加校验规则，按添加顺序执行
func (v *Validator) AddRule(rule BlockRule) {
	v.rules = append(v.rules, rule)
	v.logger.Debugf("已注册校验规则: %s", rule.Name())
}

// Rules 已注册的规则名称
func (v *Validator) Rules() []string {
	names := make([]string, len(v.rules))
	for i, rule := range v.rules {
		names[i] = rule.Name()
	}
	return names
}

// ValidateBlock 校验请求 requested 号区块得到的响应。block 为 nil 表示区块不存在，视为有效
func (v *Validator) ValidateBlock(requested uint64, block *models.Block) *ValidationResult {
	result := &ValidationResult{Valid: true, BlockNumber: requested}
	if block == nil {
		return result
	}

	for _, rule := range v.rules {
		rule.Validate(requested, block, result)
	}

	if v.strictMode && len(result.Warnings) > 0 {
		result.Valid = false
	}
	for _, w := range result.Warnings {
		v.logger.Debugf("区块 %d 校验警告: %s", requested, w)
	}
	return result
}

// blockNumberRule 响应的区块号必须与请求一致
type blockNumberRule struct{}

func (blockNumberRule) Name() string { return "block_number" }

func (blockNumberRule) Validate(requested uint64, block *models.Block, result *ValidationResult) {
	if block.Number != requested {
		result.addError("BLOCK_NUMBER_MISMATCH",
			fmt.Sprintf("请求区块 %d，节点返回区块 %d", requested, block.Number))
	}
}

// uniqueTxHashRule 同一区块内交易哈希不能重复或为空
type uniqueTxHashRule struct{}

func (uniqueTxHashRule) Name() string { return "unique_tx_hash" }

func (uniqueTxHashRule) Validate(_ uint64, block *models.Block, result *ValidationResult) {
	seen := make(map[common.Hash]struct{}, len(block.Transactions))
	for i, tx := range block.Transactions {
		if tx == nil {
			result.addError("NIL_TRANSACTION", fmt.Sprintf("第 %d 笔交易为空", i))
			continue
		}
		if tx.Hash == (common.Hash{}) {
			result.addError("EMPTY_TX_HASH", fmt.Sprintf("第 %d 笔交易缺少哈希", i))
			continue
		}
		if _, dup := seen[tx.Hash]; dup {
			result.addError("DUPLICATE_TX_HASH", fmt.Sprintf("交易哈希重复: %s", tx.Hash.Hex()))
			continue
		}
		seen[tx.Hash] = struct{}{}
	}
}

// txIndexRule 交易索引应与其在区块中的位置一致
type txIndexRule struct{}

func (txIndexRule) Name() string { return "tx_index" }

func (txIndexRule) Validate(_ uint64, block *models.Block, result *ValidationResult) {
	for i, tx := range block.Transactions {
		if tx != nil && tx.Index != i {
			result.addWarning("交易 %s 的索引为 %d，位置为 %d", tx.Hash.Hex(), tx.Index, i)
		}
	}
}

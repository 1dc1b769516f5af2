package validation

import (
	"io"
	"testing"

	scanerrors "ethrank/internal/errors"
	"ethrank/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testTx(hash byte, index int) *models.Transaction {
	return &models.Transaction{
		Hash:  common.BytesToHash([]byte{hash}),
		From:  common.HexToAddress("0x01"),
		Index: index,
	}
}

func TestNewValidator(t *testing.T) {
	v := NewValidator(quietLogger(), false)
	assert.Equal(t, []string{"block_number", "unique_tx_hash", "tx_index"}, v.Rules())
}

func TestValidateBlock_Valid(t *testing.T) {
	v := NewValidator(quietLogger(), false)
	block := &models.Block{
		Number:       100,
		Transactions: []*models.Transaction{testTx(1, 0), testTx(2, 1)},
	}

	result := v.ValidateBlock(100, block)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.NoError(t, result.Err())
}

func TestValidateBlock_AbsentIsValid(t *testing.T) {
	v := NewValidator(quietLogger(), true)
	assert.NoError(t, v.ValidateBlock(7, nil).Err())
}

func TestValidateBlock_NumberMismatch(t *testing.T) {
	v := NewValidator(quietLogger(), false)

	result := v.ValidateBlock(100, &models.Block{Number: 101})
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "BLOCK_NUMBER_MISMATCH", result.Errors[0].Code)
	require.NotNil(t, result.Errors[0].BlockNumber)
	assert.Equal(t, uint64(100), *result.Errors[0].BlockNumber)

	err := result.Err()
	assert.True(t, scanerrors.IsType(err, scanerrors.ErrorTypeValidation))
}

func TestValidateBlock_TransactionHashes(t *testing.T) {
	v := NewValidator(quietLogger(), false)
	block := &models.Block{
		Number: 1,
		Transactions: []*models.Transaction{
			testTx(1, 0),
			testTx(1, 1),
			{Index: 2},
			nil,
		},
	}

	result := v.ValidateBlock(1, block)
	require.False(t, result.Valid)
	codes := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{"DUPLICATE_TX_HASH", "EMPTY_TX_HASH", "NIL_TRANSACTION"}, codes)
}

func TestValidateBlock_IndexWarningOnlyFailsInStrictMode(t *testing.T) {
	block := &models.Block{
		Number:       1,
		Transactions: []*models.Transaction{testTx(1, 0), testTx(2, 5)},
	}

	lenient := NewValidator(quietLogger(), false).ValidateBlock(1, block)
	assert.True(t, lenient.Valid)
	assert.Len(t, lenient.Warnings, 1)

	strict := NewValidator(quietLogger(), true).ValidateBlock(1, block)
	assert.False(t, strict.Valid)
	assert.Empty(t, strict.Errors)
	assert.Error(t, strict.Err())
}

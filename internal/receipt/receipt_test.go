package receipt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/receipt"
)

func sampleReceipt() receipt.Receipt {
	return receipt.Receipt{
		TxHash:    core.Hash{1},
		BlockHash: core.Hash{2},
		From:      core.Address{3},
		GasUsed:   21000,
		GasPrice:  20,
		Success:   true,
	}
}

func TestFeeIsGasUsedTimesGasPrice(t *testing.T) {
	r := sampleReceipt()
	require.Equal(t, uint64(420000), r.Fee())
}

func TestValidateRejectsZeroGasOnSuccess(t *testing.T) {
	r := sampleReceipt()
	r.GasUsed = 0
	require.Error(t, r.Validate())
}

func TestValidateRejectsMissingFrom(t *testing.T) {
	r := sampleReceipt()
	r.From = core.Address{}
	require.Error(t, r.Validate())
}

// TestBlockReceiptValidateChecksTotals exercises invariant I8.
func TestBlockReceiptValidateChecksTotals(t *testing.T) {
	r1, r2 := sampleReceipt(), sampleReceipt()
	br := receipt.NewBlockReceipt(core.Hash{9}, 1, []receipt.Receipt{r1, r2}, core.Hash{5}, 2)
	require.NoError(t, br.Validate())
	require.Equal(t, uint64(42000), br.TotalGasUsed)
}

func TestBlockReceiptValidateRejectsCountMismatch(t *testing.T) {
	r1 := sampleReceipt()
	br := receipt.NewBlockReceipt(core.Hash{9}, 1, []receipt.Receipt{r1}, core.Hash{5}, 2)
	require.Error(t, br.Validate())
}

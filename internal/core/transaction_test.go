package core_test

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/empower1-labs/empower1-core/internal/core"
)

func mustKey(t *testing.T) *secp256k1.PrivateKey {
	t.Helper()
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key := mustKey(t)
	recipient := core.DeriveAddress(mustKey(t).PubKey())
	tx := &core.Transaction{
		Version:   1,
		Kind:      core.TxRegular,
		Timestamp: 1000,
		Outputs:   []core.TxOutput{{Value: 42, RecipientAddress: recipient}},
	}
	require.NoError(t, tx.Sign(key))
	ok, err := tx.VerifySignature()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	key := mustKey(t)
	tx := &core.Transaction{Version: 1, Kind: core.TxRegular, Timestamp: 1, Outputs: []core.TxOutput{{Value: 1}}}
	require.NoError(t, tx.Sign(key))
	tx.Outputs[0].Value = 999 // tamper after signing
	ok, err := tx.VerifySignature()
	require.Error(t, err)
	require.False(t, ok)
}

func TestCoinbaseSkipsSignatureVerification(t *testing.T) {
	tx := core.NewCoinbaseTransaction(core.Address{1, 2, 3}, 5_000_000_000, 1)
	ok, err := tx.VerifySignature()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestValidateRejectsEmptyNonCoinbaseTransaction(t *testing.T) {
	tx := &core.Transaction{Version: 1, Kind: core.TxRegular, Timestamp: 1}
	tx.ID = tx.ComputeID()
	require.Error(t, tx.Validate())
}

func TestValidateRejectsZeroID(t *testing.T) {
	tx := &core.Transaction{Version: 1, Kind: core.TxRegular, Outputs: []core.TxOutput{{Value: 1}}}
	require.Error(t, tx.Validate())
}

func TestCanonicalPayloadIgnoresInputOutputOrder(t *testing.T) {
	a := core.Address{1}
	b := core.Address{2}
	tx1 := &core.Transaction{Version: 1, Kind: core.TxRegular, Timestamp: 5,
		Outputs: []core.TxOutput{{Value: 1, RecipientAddress: a}, {Value: 2, RecipientAddress: b}}}
	tx2 := &core.Transaction{Version: 1, Kind: core.TxRegular, Timestamp: 5,
		Outputs: []core.TxOutput{{Value: 2, RecipientAddress: b}, {Value: 1, RecipientAddress: a}}}
	require.Equal(t, tx1.ComputeID(), tx2.ComputeID())
}

func TestSenderAddressDerivesFromPublicKey(t *testing.T) {
	key := mustKey(t)
	tx := &core.Transaction{Version: 1, Kind: core.TxRegular, Timestamp: 1, Outputs: []core.TxOutput{{Value: 1}}}
	require.NoError(t, tx.Sign(key))
	addr, ok := tx.SenderAddress()
	require.True(t, ok)
	require.Equal(t, core.DeriveAddress(key.PubKey()), addr)
}

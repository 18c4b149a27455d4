package operation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstz-dev/jstz/internal/crypto"
	"github.com/jstz-dev/jstz/internal/operation"
)

func TestSignedOperationSignAndVerify(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	content := operation.Content{
		Kind: operation.KindDeployFunction,
		DeployFunction: &operation.DeployFunction{
			Code:          "export default () => new Response('ok');",
			InitialCredit: 0,
		},
	}

	op, err := operation.Sign(kp, 1, content)
	require.NoError(t, err)

	ok, err := op.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignedOperationVerifyRejectsTamperedNonce(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	content := operation.Content{Kind: operation.KindWithdraw, Withdraw: &operation.Withdraw{Amount: 10, Destination: "KT1x"}}
	op, err := operation.Sign(kp, 1, content)
	require.NoError(t, err)

	op.Nonce = 2
	ok, err := op.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignedOperationEncodeDecodeRoundTrip(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	proxy := "KT1Proxy"
	content := operation.Content{
		Kind: operation.KindFaDeposit,
		FaDeposit: &operation.FaDeposit{
			InboxLevel: 5, InboxMsgID: 2, Amount: 100,
			Receiver: "tz1Receiver", Source: "tz1Source",
			TicketHash: "hash123", Proxy: &proxy,
		},
	}
	op, err := operation.Sign(kp, 7, content)
	require.NoError(t, err)

	raw, err := op.Encode()
	require.NoError(t, err)

	decoded, err := operation.DecodeSignedOperation(raw)
	require.NoError(t, err)

	assert.Equal(t, op.Nonce, decoded.Nonce)
	assert.Equal(t, op.PublicKey, decoded.PublicKey)
	assert.Equal(t, op.Signature, decoded.Signature)
	require.NotNil(t, decoded.Content.FaDeposit)
	assert.Equal(t, *content.FaDeposit, *decoded.Content.FaDeposit)

	ok, err := decoded.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOperationHashIsDeterministic(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	content := operation.Content{Kind: operation.KindWithdraw, Withdraw: &operation.Withdraw{Amount: 1, Destination: "KT1x"}}
	op, err := operation.Sign(kp, 3, content)
	require.NoError(t, err)

	h1, err := op.Hash()
	require.NoError(t, err)
	h2, err := op.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestReceiptEncodeDecodeRoundTrip(t *testing.T) {
	r := operation.Receipt{
		OpHash:  []byte{1, 2, 3},
		Status:  operation.StatusFailed,
		Result:  []byte{},
		Address: "",
		Error:   "insufficient funds",
	}
	raw, err := r.Encode()
	require.NoError(t, err)

	decoded, err := operation.DecodeReceipt(raw)
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

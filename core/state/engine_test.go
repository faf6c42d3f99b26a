package state

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhbchain/boxchain/core/codec"
	boxerrors "github.com/nhbchain/boxchain/core/errors"
	"github.com/nhbchain/boxchain/core/tx"
	"github.com/nhbchain/boxchain/core/types"
	"github.com/nhbchain/boxchain/crypto"
	"github.com/nhbchain/boxchain/native/contract"
	"github.com/nhbchain/boxchain/storage"
	"github.com/nhbchain/boxchain/storage/boxstore"
)

type key struct {
	pub  crypto.Ed25519Pub
	priv ed25519.PrivateKey
}

func mustKey(t *testing.T) key {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var p crypto.Ed25519Pub
	copy(p[:], pub)
	return key{pub: p, priv: priv}
}

func (k key) sign(msg []byte) crypto.Signature {
	var s crypto.Signature
	copy(s[:], ed25519.Sign(k.priv, msg))
	return s
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(boxstore.New(storage.NewMemDB()))
	e.SetMetrics(nil)
	return e
}

// seedGenesis commits an initial version directly into e's store (outside
// the normal ApplyBlock path), the way a genesis loader would, then makes
// it visible to the engine's cached (ts, version) pair.
func seedGenesis(t *testing.T, e *Engine, ts uint64, boxes ...types.Box) [32]byte {
	t.Helper()
	produced := make(map[[32]byte][]byte, len(boxes)+1)
	for _, b := range boxes {
		encoded, err := codec.EncodeBox(b)
		require.NoError(t, err)
		produced[b.BoxID()] = encoded
	}
	produced[timestampSentinelID] = codec.PutUint64(ts)

	genesisID := codec.H([]byte("genesis"))
	require.NoError(t, e.store.Update(genesisID, nil, produced))
	e.recover()
	return genesisID
}

func registerRole(t *testing.T, e *Engine, k key, role types.Role, ts uint64, fee uint64) {
	t.Helper()
	ptx := &types.ProfileTransaction{
		From: k.pub,
		KV:   map[string]string{"role": string(role)},
		Fee:  fee,
		Ts:   ts,
	}
	msg, err := tx.ProfileTransactionMessageToSign(ptx)
	require.NoError(t, err)
	ptx.Sig = k.sign(msg)

	block := &types.Block{
		ID:           codec.H([]byte("profile-block"), k.pub.Bytes(), codec.PutUint64(ts)),
		Timestamp:    ts,
		Transactions: []*types.Transaction{{Kind: types.TxKindProfileTransaction, ProfileTransaction: ptx}},
	}
	require.NoError(t, e.ApplyBlock(context.Background(), block))
}

// S1: a poly self-transfer spends one box and creates a new one under the
// same key, conserving value.
func TestApplyBlockPolySelfTransfer(t *testing.T) {
	e := newTestEngine(t)
	alice := mustKey(t)

	input := codec.NewPolyBox(alice.pub, 1, 100)
	seedGenesis(t, e, 10, input)

	ptx := &types.PolyTransfer{
		From: []types.PolyInput{{Pub: alice.pub, Nonce: 1}},
		To:   []types.PolyOutput{{Pub: alice.pub, Value: 90}},
		Fee:  10,
		Ts:   20,
	}
	msg := tx.PolyTransferMessageToSign(ptx)
	ptx.Sigs = []crypto.Signature{alice.sign(msg)}

	newBoxes := tx.PolyTransferNewBoxes(ptx)
	require.Len(t, newBoxes, 1)

	block := &types.Block{
		ID:           codec.H([]byte("block-1")),
		Timestamp:    20,
		Transactions: []*types.Transaction{{Kind: types.TxKindPolyTransfer, PolyTransfer: ptx}},
	}
	require.NoError(t, e.ApplyBlock(context.Background(), block))

	_, ok, err := e.store.Get(input.ID)
	require.NoError(t, err)
	require.False(t, ok, "spent input must no longer be live")

	data, ok, err := e.store.Get(newBoxes[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	decoded, err := codec.DecodeBox(data)
	require.NoError(t, err)
	require.Equal(t, newBoxes[0], decoded)
}

// S2: registering a role profile succeeds once and is rejected the second
// time for the same (pub, field).
func TestApplyBlockProfileRegistrationAndDuplicateRejection(t *testing.T) {
	e := newTestEngine(t)
	bob := mustKey(t)
	seedGenesis(t, e, 0)

	registerRole(t, e, bob, types.RoleProducer, 10, 0)

	dup := &types.ProfileTransaction{
		From: bob.pub,
		KV:   map[string]string{"role": string(types.RoleHub)},
		Ts:   20,
	}
	msg, err := tx.ProfileTransactionMessageToSign(dup)
	require.NoError(t, err)
	dup.Sig = bob.sign(msg)

	block := &types.Block{
		ID:           codec.H([]byte("dup-block")),
		Timestamp:    20,
		Transactions: []*types.Transaction{{Kind: types.TxKindProfileTransaction, ProfileTransaction: dup}},
	}
	err = e.ApplyBlock(context.Background(), block)
	require.Error(t, err)
	kind, ok := boxerrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, boxerrors.StateInvalid, kind)
}

type contractParties struct {
	producer, hub, investor key
}

func seedContractParties(t *testing.T, e *Engine) contractParties {
	t.Helper()
	p := contractParties{producer: mustKey(t), hub: mustKey(t), investor: mustKey(t)}
	seedGenesis(t, e, 0)
	registerRole(t, e, p.producer, types.RoleProducer, 10, 0)
	registerRole(t, e, p.hub, types.RoleHub, 20, 0)
	registerRole(t, e, p.investor, types.RoleInvestor, 30, 0)
	return p
}

func createContract(t *testing.T, e *Engine, p contractParties, ts uint64) types.ContractBox {
	t.Helper()
	agreement := types.Agreement{ExpirationTimestamp: 1_000_000}
	raw, err := json.Marshal(agreement)
	require.NoError(t, err)

	ctx := &types.ContractCreation{
		Agreement: raw,
		Parties: [3]types.Party{
			{Role: types.RoleProducer, Pub: p.producer.pub},
			{Role: types.RoleHub, Pub: p.hub.pub},
			{Role: types.RoleInvestor, Pub: p.investor.pub},
		},
		Ts: ts,
	}
	msg, err := tx.ContractCreationMessageToSign(ctx)
	require.NoError(t, err)
	ctx.Sigs = [3]crypto.Signature{p.producer.sign(msg), p.hub.sign(msg), p.investor.sign(msg)}

	box, err := tx.ContractCreationNewBox(ctx)
	require.NoError(t, err)

	block := &types.Block{
		ID:           codec.H([]byte("contract-create"), codec.PutUint64(ts)),
		Timestamp:    ts,
		Transactions: []*types.Transaction{{Kind: types.TxKindContractCreation, ContractCreation: ctx}},
	}
	require.NoError(t, e.ApplyBlock(context.Background(), block))
	return box
}

// S3: contract creation against three registered, role-distinct parties.
func TestApplyBlockContractCreationHappyPath(t *testing.T) {
	e := newTestEngine(t)
	p := seedContractParties(t, e)

	box := createContract(t, e, p, 40)

	data, ok, err := e.store.Get(box.ID)
	require.NoError(t, err)
	require.True(t, ok)
	decoded, err := codec.DecodeBox(data)
	require.NoError(t, err)
	cb := decoded.(types.ContractBox)
	require.Equal(t, "initialized", mustStatus(t, cb))
}

func mustStatus(t *testing.T, cb types.ContractBox) string {
	t.Helper()
	var storage struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(cb.Value.Storage, &storage))
	return storage.Status
}

func callContractMethod(t *testing.T, e *Engine, contractID [32]byte, caller key, role types.Role, method string, params interface{}, ts uint64) error {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	mtx := &types.ContractMethodExecution{
		ContractBoxID: contractID,
		Party:         types.Party{Role: role, Pub: caller.pub},
		Method:        method,
		Params:        raw,
		Ts:            ts,
	}
	msg := tx.ContractMethodExecutionMessageToSign(mtx)
	data, ok, err := e.store.Get(contractID)
	require.NoError(t, err)
	require.True(t, ok)
	decoded, err := codec.DecodeBox(data)
	require.NoError(t, err)
	cb := decoded.(types.ContractBox)

	// sigs[0] must satisfy the contract MofN; every party's own signature
	// over the same message does, since the proposition is (m=1, n=3).
	_ = cb
	mtx.Sigs = [2]crypto.Signature{caller.sign(msg), caller.sign(msg)}

	block := &types.Block{
		ID:           codec.H([]byte("method"), codec.PutUint64(ts), []byte(method)),
		Timestamp:    ts,
		Transactions: []*types.Transaction{{Kind: types.TxKindContractMethodExecution, ContractMethodExecution: mtx}},
	}
	return e.ApplyBlock(context.Background(), block)
}

// deriveReplacementBox independently recomputes the box a successful
// ContractMethodExecution call produces: a fresh native/contract dispatch
// against the pre-call value (not sharing any state with ApplyBlock's own
// dispatch), combined with the same nonce derivation
// (core/tx.ContractMethodExecutionNewNonce) keyed off the spent box's id, per
// validateContractMethodExecution (core/state/validate.go).
func deriveReplacementBox(t *testing.T, old types.ContractBox, method, callerPub string, params json.RawMessage, ts uint64) (types.ContractBox, contract.Result) {
	t.Helper()
	result, err := contract.NewEngine(nil).Dispatch(method, old.Value, contract.Call{
		CallerPub: callerPub,
		Params:    params,
		Ts:        ts,
	})
	require.NoError(t, err)

	newValue := old.Value
	if result.Mutated {
		newValue.Storage = result.Storage
	}
	newValue.LastUpdated = ts

	newNonce := tx.ContractMethodExecutionNewNonce(old.Prop.Encode(), old.ID, ts)
	newBox, err := codec.NewContractBox(old.Prop, newNonce, newValue)
	require.NoError(t, err)
	return newBox, result
}

// S4: a producer delivers, then a hub confirms; the contract box is
// replaced on each successful call and the delivered quantity accumulates.
func TestApplyBlockDeliverThenConfirm(t *testing.T) {
	e := newTestEngine(t)
	p := seedContractParties(t, e)
	box := createContract(t, e, p, 40)

	err := callContractMethod(t, e, box.ID, p.producer, types.RoleProducer, "deliver",
		map[string]interface{}{"quantity": 5}, 50)
	require.NoError(t, err)

	_, ok, gerr := e.store.Get(box.ID)
	require.NoError(t, gerr)
	require.False(t, ok, "old contract box must be replaced after a successful call")

	afterDeliver, deliverResult := deriveReplacementBox(t, box, "deliver", p.producer.pub.String(),
		json.RawMessage(`{"quantity":5}`), 50)
	require.True(t, deliverResult.Mutated)
	data, ok, gerr := e.store.Get(afterDeliver.ID)
	require.NoError(t, gerr)
	require.True(t, ok, "replacement box after deliver must be live at its re-derived id")

	deliveredBox := data2box(t, data)
	var afterDeliverStorage contract.Storage
	require.NoError(t, json.Unmarshal(deliveredBox.Value.Storage, &afterDeliverStorage))
	require.Len(t, afterDeliverStorage.CurrentFulfillment.PendingDeliveries, 1)
	deliveryID := afterDeliverStorage.CurrentFulfillment.PendingDeliveries[0].ID
	require.NotEmpty(t, deliveryID)

	err = callContractMethod(t, e, afterDeliver.ID, p.hub, types.RoleHub, "confirmDelivery",
		map[string]interface{}{"deliveryId": deliveryID}, 60)
	require.NoError(t, err)

	_, ok, gerr = e.store.Get(afterDeliver.ID)
	require.NoError(t, gerr)
	require.False(t, ok, "delivered box must be replaced again after confirmDelivery")

	confirmParams := json.RawMessage(`{"deliveryId":"` + deliveryID + `"}`)
	afterConfirm, confirmResult := deriveReplacementBox(t, deliveredBox, "confirmDelivery", p.hub.pub.String(), confirmParams, 60)
	require.True(t, confirmResult.Mutated)
	data, ok, gerr = e.store.Get(afterConfirm.ID)
	require.NoError(t, gerr)
	require.True(t, ok, "replacement box after confirmDelivery must be live at its re-derived id")

	confirmedBox := data2box(t, data)
	var finalStorage contract.Storage
	require.NoError(t, json.Unmarshal(confirmedBox.Value.Storage, &finalStorage))
	require.Empty(t, finalStorage.CurrentFulfillment.PendingDeliveries)
	require.Equal(t, uint64(5), finalStorage.CurrentFulfillment.DeliveredQuantity)
}

// S5: the hub (not the producer) calling deliver is a StateInvalid failure
// that aborts the block; the contract box is left untouched.
func TestApplyBlockDeliverRejectsUnauthorizedCaller(t *testing.T) {
	e := newTestEngine(t)
	p := seedContractParties(t, e)
	box := createContract(t, e, p, 40)

	err := callContractMethod(t, e, box.ID, p.hub, types.RoleHub, "deliver",
		map[string]interface{}{"quantity": 5}, 50)
	require.Error(t, err)
	kind, ok := boxerrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, boxerrors.StateInvalid, kind)

	data, ok, gerr := e.store.Get(box.ID)
	require.NoError(t, gerr)
	require.True(t, ok, "contract box must survive a rejected block")
	require.Equal(t, "initialized", mustStatus(t, data2box(t, data)))
}

func data2box(t *testing.T, data []byte) types.ContractBox {
	t.Helper()
	decoded, err := codec.DecodeBox(data)
	require.NoError(t, err)
	return decoded.(types.ContractBox)
}

// S6: rolling a multi-block chain back to genesis undoes every block in
// order.
func TestRollbackAcrossMultipleBlocks(t *testing.T) {
	e := newTestEngine(t)
	alice := mustKey(t)

	input := codec.NewPolyBox(alice.pub, 1, 300)
	genesis := seedGenesis(t, e, 10, input)

	prev := input
	for i, ts := range []uint64{20, 30, 40} {
		ptx := &types.PolyTransfer{
			From: []types.PolyInput{{Pub: alice.pub, Nonce: prev.Nonce}},
			To:   []types.PolyOutput{{Pub: alice.pub, Value: prev.Value - 10}},
			Fee:  10,
			Ts:   ts,
		}
		msg := tx.PolyTransferMessageToSign(ptx)
		ptx.Sigs = []crypto.Signature{alice.sign(msg)}
		newBoxes := tx.PolyTransferNewBoxes(ptx)

		block := &types.Block{
			ID:           codec.H([]byte("chain-block"), codec.PutUint32(uint32(i))),
			Timestamp:    ts,
			Transactions: []*types.Transaction{{Kind: types.TxKindPolyTransfer, PolyTransfer: ptx}},
		}
		require.NoError(t, e.ApplyBlock(context.Background(), block))
		prev = newBoxes[0]
	}

	_, ok, _ := e.store.Get(prev.ID)
	require.True(t, ok)

	require.NoError(t, e.RollbackTo(genesis))

	_, ok, _ = e.store.Get(prev.ID)
	require.False(t, ok)
	data, ok, _ := e.store.Get(input.ID)
	require.True(t, ok)
	require.NoError(t, func() error { _, err := codec.DecodeBox(data); return err }())
	require.Equal(t, uint64(10), e.Timestamp())
}

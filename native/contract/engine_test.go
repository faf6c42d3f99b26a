package contract

import (
	"encoding/json"
	"testing"

	boxerrors "github.com/nhbchain/boxchain/core/errors"
	"github.com/nhbchain/boxchain/core/types"
	"github.com/stretchr/testify/require"
)

func fixtureValue() types.ContractValue {
	return types.ContractValue{
		Producer:    "producerPub",
		Hub:         "hubPub",
		Investor:    "investorPub",
		Agreement:   json.RawMessage(`{"expirationTimestamp":5000}`),
		Storage:     json.RawMessage(`{"status":"initialized"}`),
		LastUpdated: 1000,
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Dispatch("selfDestruct", fixtureValue(), Call{})
	require.Error(t, err)
	kind, ok := boxerrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, boxerrors.SemanticInvalid, kind)
}

func TestDeliverThenConfirm(t *testing.T) {
	e := NewEngine(nil)
	value := fixtureValue()

	res, err := e.Dispatch("deliver", value, Call{
		CallerRole: types.RoleProducer,
		CallerPub:  "producerPub",
		Params:     json.RawMessage(`{"quantity":5}`),
		Ts:         2000,
	})
	require.NoError(t, err)
	require.True(t, res.Mutated)
	value.Storage = res.Storage

	var storage Storage
	require.NoError(t, json.Unmarshal(value.Storage, &storage))
	require.NotNil(t, storage.CurrentFulfillment)
	require.Len(t, storage.CurrentFulfillment.PendingDeliveries, 1)
	deliveryID := storage.CurrentFulfillment.PendingDeliveries[0].ID
	require.NotEmpty(t, deliveryID)

	res, err = e.Dispatch("confirmDelivery", value, Call{
		CallerRole: types.RoleHub,
		CallerPub:  "hubPub",
		Params:     json.RawMessage(`{"deliveryId":"` + deliveryID + `"}`),
		Ts:         2500,
	})
	require.NoError(t, err)
	require.True(t, res.Mutated)

	storage = Storage{}
	require.NoError(t, json.Unmarshal(res.Storage, &storage))
	require.Empty(t, storage.CurrentFulfillment.PendingDeliveries)
	require.Equal(t, uint64(5), storage.CurrentFulfillment.DeliveredQuantity)
}

func TestDeliverRejectsUnauthorizedCaller(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Dispatch("deliver", fixtureValue(), Call{
		CallerRole: types.RoleHub,
		CallerPub:  "hubPub",
		Params:     json.RawMessage(`{"quantity":3}`),
		Ts:         2000,
	})
	require.Error(t, err)
	kind, ok := boxerrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, boxerrors.ContractExecutionFailed, kind)
}

func TestConfirmDeliveryUnknownID(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Dispatch("confirmDelivery", fixtureValue(), Call{
		CallerRole: types.RoleHub,
		CallerPub:  "hubPub",
		Params:     json.RawMessage(`{"deliveryId":"missing"}`),
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDeliveryNotFound)
}

func TestCheckExpiration(t *testing.T) {
	e := NewEngine(func() uint64 { return 6000 })
	res, err := e.Dispatch("checkExpiration", fixtureValue(), Call{CallerPub: "producerPub"})
	require.NoError(t, err)
	require.False(t, res.Mutated)
	var expired bool
	require.NoError(t, json.Unmarshal(res.Value, &expired))
	require.True(t, expired)
}

func TestDisputeSetsStatus(t *testing.T) {
	e := NewEngine(nil)
	res, err := e.Dispatch("dispute", fixtureValue(), Call{
		CallerRole: types.RoleInvestor,
		CallerPub:  "investorPub",
		Params:     json.RawMessage(`{"reason":"late shipment"}`),
	})
	require.NoError(t, err)
	require.True(t, res.Mutated)

	var storage Storage
	require.NoError(t, json.Unmarshal(res.Storage, &storage))
	require.Equal(t, StatusDisputed, storage.Status)
	require.Equal(t, "late shipment", storage.DisputeReason)
	require.Equal(t, "investor", storage.DisputedBy)
}

func TestDisputeRejectsUnknownCaller(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Dispatch("dispute", fixtureValue(), Call{CallerPub: "stranger"})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnauthorizedCaller)
}

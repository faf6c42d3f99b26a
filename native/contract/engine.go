package contract

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/btcsuite/btcutil/base58"

	"github.com/nhbchain/boxchain/core/codec"
	boxerrors "github.com/nhbchain/boxchain/core/errors"
	"github.com/nhbchain/boxchain/core/types"
)

var (
	// ErrUnknownMethod is returned for any name outside the fixed dispatch
	// table (spec §4.4).
	ErrUnknownMethod = errors.New("contract: unknown method")
	// ErrUnauthorizedCaller is returned when the caller's key does not match
	// the role a method requires for this specific contract.
	ErrUnauthorizedCaller = errors.New("contract: unauthorized caller")
	// ErrBadStatus is returned when a method cannot run against the
	// contract's current status.
	ErrBadStatus = errors.New("contract: invalid status for operation")
	// ErrDeliveryNotFound is returned by confirmDelivery for an unknown id.
	ErrDeliveryNotFound = errors.New("contract: delivery id not found")
)

// Call bundles everything a dispatched method needs beyond the contract's
// own value: the caller's role and base58 public key, the method's raw JSON
// parameters, and the host transaction's declared timestamp. Methods that
// stamp a timestamp into storage (deliver) use call.Ts rather than a
// wall-clock read, so that replaying the same block yields byte-identical
// state on every node (spec §9 design note on contract timestamp
// determinism).
type Call struct {
	CallerRole types.Role
	CallerPub  string
	Params     json.RawMessage
	Ts         uint64
}

// Result is what a dispatched method produces: either a mutated storage
// sub-object (Mutated true, Storage populated) or a pure query value
// (Mutated false, Value populated). Agreement, parties and id are never
// touched by a method call (spec §4.4).
type Result struct {
	Mutated bool
	Storage json.RawMessage
	Value   json.RawMessage
}

type methodFunc func(*Engine, types.ContractValue, Call) (Result, error)

// Engine dispatches the fixed set of contract methods by an explicit table,
// never by reflective lookup, so the set of callable methods can never grow
// beyond what this file defines (spec §4.4, §9).
type Engine struct {
	wallClockMillis func() uint64
	methods         map[string]methodFunc
}

// NewEngine builds a contract engine. wallClockMillis is consulted only by
// checkExpiration, which is a pure query and therefore free to read real
// time; pass nil to default to time.Now.
func NewEngine(wallClockMillis func() uint64) *Engine {
	if wallClockMillis == nil {
		wallClockMillis = func() uint64 { return uint64(time.Now().UnixMilli()) }
	}
	e := &Engine{wallClockMillis: wallClockMillis}
	e.methods = map[string]methodFunc{
		"complete":        (*Engine).complete,
		"currentStatus":   (*Engine).currentStatus,
		"deliver":         (*Engine).deliver,
		"confirmDelivery": (*Engine).confirmDelivery,
		"checkExpiration": (*Engine).checkExpiration,
		"dispute":         (*Engine).dispute,
	}
	return e
}

// Dispatch invokes the named method against value on behalf of call.
func (e *Engine) Dispatch(method string, value types.ContractValue, call Call) (Result, error) {
	fn, ok := e.methods[method]
	if !ok {
		return Result{}, boxerrors.Errorf(boxerrors.SemanticInvalid, "contract.Dispatch", "%w: %q", ErrUnknownMethod, method)
	}
	return fn(e, value, call)
}

func isParty(value types.ContractValue, pub string) bool {
	return pub == value.Producer || pub == value.Hub || pub == value.Investor
}

func decodeStorage(raw json.RawMessage) (Storage, error) {
	if len(raw) == 0 {
		return Storage{Status: StatusInitialized}, nil
	}
	var s Storage
	if err := json.Unmarshal(raw, &s); err != nil {
		return Storage{}, boxerrors.New(boxerrors.Malformed, "contract.decodeStorage", err)
	}
	return s, nil
}

func (e *Engine) complete(value types.ContractValue, call Call) (Result, error) {
	if !isParty(value, call.CallerPub) {
		return Result{}, boxerrors.Errorf(boxerrors.ContractExecutionFailed, "contract.complete", "%w", ErrUnauthorizedCaller)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return Result{}, boxerrors.New(boxerrors.Malformed, "contract.complete", err)
	}
	return Result{Value: raw}, nil
}

func (e *Engine) currentStatus(value types.ContractValue, call Call) (Result, error) {
	if !isParty(value, call.CallerPub) {
		return Result{}, boxerrors.Errorf(boxerrors.ContractExecutionFailed, "contract.currentStatus", "%w", ErrUnauthorizedCaller)
	}
	storage, err := decodeStorage(value.Storage)
	if err != nil {
		return Result{}, err
	}
	raw, err := json.Marshal(storage.Status)
	if err != nil {
		return Result{}, boxerrors.New(boxerrors.Malformed, "contract.currentStatus", err)
	}
	return Result{Value: raw}, nil
}

// deliverParams is the decoded shape of deliver's params.
type deliverParams struct {
	Quantity uint64 `json:"quantity"`
}

func (e *Engine) deliver(value types.ContractValue, call Call) (Result, error) {
	if call.CallerPub != value.Producer {
		return Result{}, boxerrors.Errorf(boxerrors.ContractExecutionFailed, "contract.deliver", "%w", ErrUnauthorizedCaller)
	}
	var params deliverParams
	if err := json.Unmarshal(call.Params, &params); err != nil {
		return Result{}, boxerrors.New(boxerrors.Malformed, "contract.deliver", err)
	}
	if params.Quantity == 0 {
		return Result{}, boxerrors.Errorf(boxerrors.SemanticInvalid, "contract.deliver", "quantity must be positive")
	}
	storage, err := decodeStorage(value.Storage)
	if err != nil {
		return Result{}, err
	}
	if storage.Status == StatusExpired || storage.Status == StatusComplete || storage.Status == StatusDisputed {
		return Result{}, boxerrors.Errorf(boxerrors.ContractExecutionFailed, "contract.deliver", "%w: status %q", ErrBadStatus, storage.Status)
	}
	if storage.CurrentFulfillment == nil {
		storage.CurrentFulfillment = &Fulfillment{}
	}

	existing := storage.CurrentFulfillment.PendingDeliveries
	hashed := make([]interface{}, 0, len(existing)+1)
	for _, d := range existing {
		hashed = append(hashed, d)
	}
	hashed = append(hashed, pendingDelivery{Quantity: params.Quantity, Timestamp: call.Ts})
	canon, err := codec.CanonicalJSON(hashed)
	if err != nil {
		return Result{}, boxerrors.New(boxerrors.Malformed, "contract.deliver", err)
	}
	idHash := codec.H(canon)

	entry := Delivery{ID: base58.Encode(idHash[:]), Quantity: params.Quantity, Timestamp: call.Ts}
	storage.CurrentFulfillment.PendingDeliveries = append(existing, entry)

	raw, err := json.Marshal(storage)
	if err != nil {
		return Result{}, boxerrors.New(boxerrors.Malformed, "contract.deliver", err)
	}
	return Result{Mutated: true, Storage: raw}, nil
}

type confirmDeliveryParams struct {
	DeliveryID string `json:"deliveryId"`
}

func (e *Engine) confirmDelivery(value types.ContractValue, call Call) (Result, error) {
	if call.CallerPub != value.Hub {
		return Result{}, boxerrors.Errorf(boxerrors.ContractExecutionFailed, "contract.confirmDelivery", "%w", ErrUnauthorizedCaller)
	}
	var params confirmDeliveryParams
	if err := json.Unmarshal(call.Params, &params); err != nil {
		return Result{}, boxerrors.New(boxerrors.Malformed, "contract.confirmDelivery", err)
	}
	storage, err := decodeStorage(value.Storage)
	if err != nil {
		return Result{}, err
	}
	if storage.Status == StatusDisputed {
		return Result{}, boxerrors.Errorf(boxerrors.ContractExecutionFailed, "contract.confirmDelivery", "%w: status %q", ErrBadStatus, storage.Status)
	}
	if storage.CurrentFulfillment == nil {
		return Result{}, boxerrors.Errorf(boxerrors.ContractExecutionFailed, "contract.confirmDelivery", "%w", ErrDeliveryNotFound)
	}
	idx := -1
	for i, d := range storage.CurrentFulfillment.PendingDeliveries {
		if d.ID == params.DeliveryID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Result{}, boxerrors.Errorf(boxerrors.ContractExecutionFailed, "contract.confirmDelivery", "%w", ErrDeliveryNotFound)
	}
	delivered := storage.CurrentFulfillment.PendingDeliveries[idx]
	remaining := make([]Delivery, 0, len(storage.CurrentFulfillment.PendingDeliveries)-1)
	remaining = append(remaining, storage.CurrentFulfillment.PendingDeliveries[:idx]...)
	remaining = append(remaining, storage.CurrentFulfillment.PendingDeliveries[idx+1:]...)
	storage.CurrentFulfillment.PendingDeliveries = remaining
	storage.CurrentFulfillment.DeliveredQuantity += delivered.Quantity

	raw, err := json.Marshal(storage)
	if err != nil {
		return Result{}, boxerrors.New(boxerrors.Malformed, "contract.confirmDelivery", err)
	}
	return Result{Mutated: true, Storage: raw}, nil
}

func (e *Engine) checkExpiration(value types.ContractValue, call Call) (Result, error) {
	agreement, err := types.ParseAgreement(value.Agreement)
	if err != nil {
		return Result{}, boxerrors.New(boxerrors.Malformed, "contract.checkExpiration", err)
	}
	expired := e.wallClockMillis() > agreement.ExpirationTimestamp
	raw, err := json.Marshal(expired)
	if err != nil {
		return Result{}, boxerrors.New(boxerrors.Malformed, "contract.checkExpiration", err)
	}
	return Result{Value: raw}, nil
}

type disputeParams struct {
	Reason string `json:"reason"`
}

// dispute flags the contract as disputed. Not named in spec §4.4's original
// five methods; supplemented here because a three-party agreement with no
// way to flag non-delivery is an incomplete contract engine, and the
// teacher's escrow engine models the same transition (native/escrow
// Dispute/Resolve).
func (e *Engine) dispute(value types.ContractValue, call Call) (Result, error) {
	if !isParty(value, call.CallerPub) {
		return Result{}, boxerrors.Errorf(boxerrors.ContractExecutionFailed, "contract.dispute", "%w", ErrUnauthorizedCaller)
	}
	var params disputeParams
	if err := json.Unmarshal(call.Params, &params); err != nil {
		return Result{}, boxerrors.New(boxerrors.Malformed, "contract.dispute", err)
	}
	storage, err := decodeStorage(value.Storage)
	if err != nil {
		return Result{}, err
	}
	if storage.Status == StatusComplete || storage.Status == StatusExpired {
		return Result{}, boxerrors.Errorf(boxerrors.ContractExecutionFailed, "contract.dispute", "%w: status %q", ErrBadStatus, storage.Status)
	}
	storage.Status = StatusDisputed
	storage.DisputeReason = params.Reason
	storage.DisputedBy = string(call.CallerRole)

	raw, err := json.Marshal(storage)
	if err != nil {
		return Result{}, boxerrors.New(boxerrors.Malformed, "contract.dispute", err)
	}
	return Result{Mutated: true, Storage: raw}, nil
}

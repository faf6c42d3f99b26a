package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhbchain/boxchain/core/codec"
	boxerrors "github.com/nhbchain/boxchain/core/errors"
	"github.com/nhbchain/boxchain/core/tx"
	"github.com/nhbchain/boxchain/core/types"
	"github.com/nhbchain/boxchain/crypto"
	"github.com/nhbchain/boxchain/native/contract"
)

// delta is what one transaction, validated against a snapshot, wants to do
// to the box store: the ids it spends and the (id, encoded bytes) pairs it
// produces.
type delta struct {
	remove   map[[32]byte]struct{}
	produced map[[32]byte][]byte
}

// SemanticValidity runs only the stateless checks for tx (spec §4.3),
// without touching the store.
func (e *Engine) SemanticValidity(txn *types.Transaction) error {
	return tx.SemanticValidate(txn)
}

// Validate runs the full stateful check for txn against the currently
// committed snapshot, without applying anything (spec §4.6). It is safe to
// call concurrently with ApplyBlock only in the sense that it takes the same
// lock; it never mutates the store.
func (e *Engine) Validate(txn *types.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.validateStateful(txn)
	return err
}

func (e *Engine) validateStateful(txn *types.Transaction) (delta, error) {
	switch txn.Kind {
	case types.TxKindPolyTransfer:
		return e.validatePolyTransfer(txn.PolyTransfer)
	case types.TxKindContractCreation:
		return e.validateContractCreation(txn.ContractCreation)
	case types.TxKindContractMethodExecution:
		return e.validateContractMethodExecution(txn.ContractMethodExecution)
	case types.TxKindProfileTransaction:
		return e.validateProfileTransaction(txn.ProfileTransaction)
	default:
		return delta{}, boxerrors.Errorf(boxerrors.Malformed, "state.Validate", "unknown transaction kind %d", txn.Kind)
	}
}

// profileRole resolves the "role" field of the profile keyed by pub, if any.
func (e *Engine) profileRole(pub crypto.Ed25519Pub) (role string, ok bool, err error) {
	id := codec.ProfileID(pub, "role")
	data, ok, gerr := e.store.Get(id)
	if gerr != nil {
		return "", false, boxerrors.New(boxerrors.StoreError, "state.profileRole", gerr)
	}
	if !ok {
		return "", false, nil
	}
	box, derr := codec.DecodeBox(data)
	if derr != nil {
		return "", false, boxerrors.New(boxerrors.StoreError, "state.profileRole", derr)
	}
	pb, ok := box.(types.ProfileBox)
	if !ok {
		return "", false, boxerrors.Errorf(boxerrors.StateInvalid, "state.profileRole", "profile id resolves to a %T, not ProfileBox", box)
	}
	return pb.Value, true, nil
}

func (e *Engine) tsAheadOfState(op string, ts uint64) error {
	if ts <= e.ts {
		return boxerrors.Errorf(boxerrors.StateInvalid, op, "tx timestamp %d not ahead of state timestamp %d", ts, e.ts)
	}
	// spec §3 invariant 6 / §4.6: it is the *previous* committed state's
	// timestamp that must lag the wall clock, not the incoming tx's.
	if e.ts >= e.nowFn() {
		return boxerrors.Errorf(boxerrors.StateInvalid, op, "state timestamp %d is not behind wall clock", e.ts)
	}
	return nil
}

func (e *Engine) validatePolyTransfer(t *types.PolyTransfer) (delta, error) {
	if err := tx.PolyTransferSemanticValidate(t); err != nil {
		return delta{}, err
	}
	if err := e.tsAheadOfState("state.PolyTransfer", t.Ts); err != nil {
		return delta{}, err
	}

	inputIDs := tx.PolyTransferInputIDs(t)
	remove := make(map[[32]byte]struct{}, len(inputIDs))
	var sumIn uint64
	for i, id := range inputIDs {
		data, ok, gerr := e.store.Get(id)
		if gerr != nil {
			return delta{}, boxerrors.New(boxerrors.StoreError, "state.PolyTransfer", gerr)
		}
		if !ok {
			return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.PolyTransfer", "input %d box %x not found", i, id)
		}
		box, derr := codec.DecodeBox(data)
		if derr != nil {
			return delta{}, boxerrors.New(boxerrors.StoreError, "state.PolyTransfer", derr)
		}
		pb, ok := box.(types.PolyBox)
		if !ok {
			return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.PolyTransfer", "input %d box %x is a %T, not PolyBox", i, id, box)
		}
		sumIn += pb.Value
		remove[id] = struct{}{}
	}

	var sumOut uint64
	for _, o := range t.To {
		sumOut += o.Value
	}
	if sumIn != sumOut+t.Fee {
		return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.PolyTransfer", "inputs sum %d != outputs sum %d + fee %d", sumIn, sumOut, t.Fee)
	}

	produced := make(map[[32]byte][]byte, len(t.To))
	for _, box := range tx.PolyTransferNewBoxes(t) {
		encoded, eerr := codec.EncodeBox(box)
		if eerr != nil {
			return delta{}, boxerrors.New(boxerrors.Malformed, "state.PolyTransfer", eerr)
		}
		produced[box.ID] = encoded
	}
	return delta{remove: remove, produced: produced}, nil
}

func (e *Engine) validateContractCreation(t *types.ContractCreation) (delta, error) {
	if err := tx.ContractCreationSemanticValidate(t); err != nil {
		return delta{}, err
	}
	if err := e.tsAheadOfState("state.ContractCreation", t.Ts); err != nil {
		return delta{}, err
	}

	seenRoles := make(map[types.Role]bool, 3)
	for i, p := range t.Parties {
		role, ok, err := e.profileRole(p.Pub)
		if err != nil {
			return delta{}, err
		}
		if !ok {
			return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.ContractCreation", "party %d has no role profile", i)
		}
		if types.Role(role) != p.Role {
			return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.ContractCreation", "party %d profile role %q does not match claimed role %q", i, role, p.Role)
		}
		seenRoles[p.Role] = true
	}
	if len(seenRoles) != 3 {
		return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.ContractCreation", "parties do not cover producer, hub, and investor")
	}

	box, berr := tx.ContractCreationNewBox(t)
	if berr != nil {
		return delta{}, boxerrors.New(boxerrors.Malformed, "state.ContractCreation", berr)
	}
	if _, exists, gerr := e.store.Get(box.ID); gerr != nil {
		return delta{}, boxerrors.New(boxerrors.StoreError, "state.ContractCreation", gerr)
	} else if exists {
		return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.ContractCreation", "contract id %x already exists", box.ID)
	}

	encoded, eerr := codec.EncodeBox(box)
	if eerr != nil {
		return delta{}, boxerrors.New(boxerrors.Malformed, "state.ContractCreation", eerr)
	}
	return delta{produced: map[[32]byte][]byte{box.ID: encoded}}, nil
}

func (e *Engine) validateContractMethodExecution(t *types.ContractMethodExecution) (delta, error) {
	if err := tx.ContractMethodExecutionSemanticValidate(t); err != nil {
		return delta{}, err
	}
	if err := e.tsAheadOfState("state.ContractMethodExecution", t.Ts); err != nil {
		return delta{}, err
	}

	data, ok, gerr := e.store.Get(t.ContractBoxID)
	if gerr != nil {
		return delta{}, boxerrors.New(boxerrors.StoreError, "state.ContractMethodExecution", gerr)
	}
	if !ok {
		return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.ContractMethodExecution", "contract %x not found", t.ContractBoxID)
	}
	decoded, derr := codec.DecodeBox(data)
	if derr != nil {
		return delta{}, boxerrors.New(boxerrors.StoreError, "state.ContractMethodExecution", derr)
	}
	cb, ok := decoded.(types.ContractBox)
	if !ok {
		return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.ContractMethodExecution", "%x is a %T, not ContractBox", t.ContractBoxID, decoded)
	}

	msg := tx.ContractMethodExecutionMessageToSign(t)
	if !cb.Prop.Verify(msg, []crypto.Signature{t.Sigs[0]}) {
		return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.ContractMethodExecution", "sigs[0] does not satisfy the contract proposition")
	}
	if !t.Party.Pub.Verify(msg, t.Sigs[1]) {
		return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.ContractMethodExecution", "sigs[1] invalid for caller")
	}

	role, ok, rerr := e.profileRole(t.Party.Pub)
	if rerr != nil {
		return delta{}, rerr
	}
	if !ok || types.Role(role) != t.Party.Role {
		return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.ContractMethodExecution", "caller role does not match its profile")
	}

	call := contract.Call{
		CallerRole: t.Party.Role,
		CallerPub:  t.Party.Pub.String(),
		Params:     t.Params,
		Ts:         t.Ts,
	}
	result, derr := e.contract.Dispatch(t.Method, cb.Value, call)
	if derr != nil {
		kind, _ := boxerrors.KindOf(derr)
		if kind != boxerrors.ContractExecutionFailed {
			return delta{}, derr
		}
		if errors.Is(derr, contract.ErrUnauthorizedCaller) {
			// §8 scenario S5: an unauthorized caller is a state-level
			// violation, not a benign no-op, and must abort the block.
			return delta{}, boxerrors.New(boxerrors.StateInvalid, "state.ContractMethodExecution", derr)
		}
		// §4.6: every other ContractExecutionFailed cause is a non-fatal
		// no-op — the contract box is left exactly as it was.
		return delta{}, nil
	}

	newValue := cb.Value
	if result.Mutated {
		newValue.Storage = result.Storage
	}
	newValue.LastUpdated = t.Ts

	newNonce := tx.ContractMethodExecutionNewNonce(cb.Prop.Encode(), cb.ID, t.Ts)
	newBox, nerr := codec.NewContractBox(cb.Prop, newNonce, newValue)
	if nerr != nil {
		return delta{}, boxerrors.New(boxerrors.Malformed, "state.ContractMethodExecution", nerr)
	}
	encoded, eerr := codec.EncodeBox(newBox)
	if eerr != nil {
		return delta{}, boxerrors.New(boxerrors.Malformed, "state.ContractMethodExecution", eerr)
	}

	return delta{
		remove:   map[[32]byte]struct{}{cb.ID: {}},
		produced: map[[32]byte][]byte{newBox.ID: encoded},
	}, nil
}

func (e *Engine) validateProfileTransaction(t *types.ProfileTransaction) (delta, error) {
	if err := tx.ProfileTransactionSemanticValidate(t); err != nil {
		return delta{}, err
	}
	for field := range t.KV {
		id := codec.ProfileID(t.From, field)
		if _, exists, gerr := e.store.Get(id); gerr != nil {
			return delta{}, boxerrors.New(boxerrors.StoreError, "state.ProfileTransaction", gerr)
		} else if exists {
			return delta{}, boxerrors.Errorf(boxerrors.StateInvalid, "state.ProfileTransaction", "profile (%s, %s) already exists", t.From, field)
		}
	}

	produced := make(map[[32]byte][]byte, len(t.KV))
	for _, box := range tx.ProfileTransactionNewBoxes(t) {
		encoded, eerr := codec.EncodeBox(box)
		if eerr != nil {
			return delta{}, boxerrors.New(boxerrors.Malformed, "state.ProfileTransaction", eerr)
		}
		produced[box.ID] = encoded
	}
	return delta{produced: produced}, nil
}

// ApplyBlock validates every transaction in block against the snapshot
// committed so far, then atomically commits the union of their deltas (spec
// §4.6, §5). A single invalid transaction rejects the whole block; the store
// is left untouched.
func (e *Engine) ApplyBlock(ctx context.Context, block *types.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, span := startApplyBlockSpan(ctx, e.tracer, block.ID)
	defer span.End()

	start := e.nowFn()

	totalRemove := make(map[[32]byte]struct{})
	totalProduced := make(map[[32]byte][]byte)
	removeCount := make(map[[32]byte]int)
	producedCount := make(map[[32]byte]int)

	for i, txn := range block.Transactions {
		d, err := e.validateStateful(txn)
		if err != nil {
			kind, _ := boxerrors.KindOf(err)
			e.metrics.observeRejected(kind.String())
			e.log.Debug("transaction rejected", "block", block.ID, "tx_index", i, "kind", kind.String(), "error", err)
			return fmt.Errorf("state: tx %d: %w", i, err)
		}
		for id := range d.remove {
			removeCount[id]++
			totalRemove[id] = struct{}{}
		}
		for id, data := range d.produced {
			producedCount[id]++
			totalProduced[id] = data
		}
	}

	for id, n := range removeCount {
		if n > 1 {
			err := boxerrors.Errorf(boxerrors.StateInvalid, "state.ApplyBlock", "box %x spent by more than one transaction in this block", id)
			e.metrics.observeRejected(boxerrors.StateInvalid.String())
			return err
		}
	}
	for id, n := range producedCount {
		if n > 1 {
			err := boxerrors.Errorf(boxerrors.StateInvalid, "state.ApplyBlock", "id %x produced by more than one transaction in this block", id)
			e.metrics.observeRejected(boxerrors.StateInvalid.String())
			return err
		}
		if _, removed := totalRemove[id]; removed {
			err := boxerrors.Errorf(boxerrors.StateInvalid, "state.ApplyBlock", "id %x is both spent and re-created within this block", id)
			e.metrics.observeRejected(boxerrors.StateInvalid.String())
			return err
		}
		if _, exists, gerr := e.store.Get(id); gerr != nil {
			err := boxerrors.New(boxerrors.StoreError, "state.ApplyBlock", gerr)
			e.metrics.observeRejected(boxerrors.StoreError.String())
			return err
		} else if exists {
			err := boxerrors.Errorf(boxerrors.StateInvalid, "state.ApplyBlock", "produced id %x collides with a surviving box", id)
			e.metrics.observeRejected(boxerrors.StateInvalid.String())
			return err
		}
	}

	totalProduced[timestampSentinelID] = codec.PutUint64(block.Timestamp)

	if err := e.store.Update(block.ID, totalRemove, totalProduced); err != nil {
		e.metrics.observeRejected(boxerrors.StoreError.String())
		e.log.Debug("block commit failed", "block", block.ID, "error", err)
		return err
	}

	e.ts = block.Timestamp
	e.version = block.ID
	e.hasVersion = true

	e.metrics.observeApplied(float64(e.nowFn()-start) / 1000)
	e.log.Info("block applied", "block", block.ID, "tx_count", len(block.Transactions), "ts", block.Timestamp)
	return nil
}

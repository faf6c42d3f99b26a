package tx

import (
	"fmt"

	boxerrors "github.com/nhbchain/boxchain/core/errors"
	"github.com/nhbchain/boxchain/core/types"
)

// SemanticValidate runs the stateless checks for whichever kind t holds,
// dispatching to the per-kind function (spec §4.3).
func SemanticValidate(t *types.Transaction) error {
	switch t.Kind {
	case types.TxKindPolyTransfer:
		return PolyTransferSemanticValidate(t.PolyTransfer)
	case types.TxKindContractCreation:
		return ContractCreationSemanticValidate(t.ContractCreation)
	case types.TxKindContractMethodExecution:
		return ContractMethodExecutionSemanticValidate(t.ContractMethodExecution)
	case types.TxKindProfileTransaction:
		return ProfileTransactionSemanticValidate(t.ProfileTransaction)
	default:
		return boxerrors.Errorf(boxerrors.Malformed, "tx.SemanticValidate", "unknown transaction kind %d", t.Kind)
	}
}

// MessageToSign returns whichever kind t holds's signing payload.
func MessageToSign(t *types.Transaction) ([]byte, error) {
	switch t.Kind {
	case types.TxKindPolyTransfer:
		return PolyTransferMessageToSign(t.PolyTransfer), nil
	case types.TxKindContractCreation:
		return ContractCreationMessageToSign(t.ContractCreation)
	case types.TxKindContractMethodExecution:
		return ContractMethodExecutionMessageToSign(t.ContractMethodExecution), nil
	case types.TxKindProfileTransaction:
		return ProfileTransactionMessageToSign(t.ProfileTransaction)
	default:
		return nil, fmt.Errorf("tx: unknown transaction kind %d", t.Kind)
	}
}

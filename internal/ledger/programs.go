package ledger

import (
	"fmt"

	"github.com/tendermint/intentd/vm"
)

// Names of the built-in programs.
const (
	ProgramTxTransfer        = "tx_transfer"
	ProgramTxIntentTransfers = "tx_intent_transfers"

	VPUser         = "vp_user"
	VPToken        = "vp_token"
	VPAlwaysAccept = "vp_always_accept"
	VPAlwaysReject = "vp_always_reject"
)

// transferLoop applies every transfer of the frame held in local 9. For
// each it debits the source, credits the target and inserts the source as
// a verifier. A short balance traps on SUB.
//
// locals: 0 count, 1 index, 2 transfer, 3 source, 4 target, 5 token,
// 6 amount, 7 source key, 8 target key, 9 transfers
const transferLoop = `
	LOAD 9
	COUNT
	STORE 0
	PUSHU 0
	STORE 1
loop:
	LOAD 1
	LOAD 0
	LT
	ISZERO
	JUMPI done
	LOAD 9
	LOAD 1
	FIELD
	STORE 2
	LOAD 2
	PUSHU 0
	FIELD
	STORE 3
	LOAD 2
	PUSHU 1
	FIELD
	STORE 4
	LOAD 2
	PUSHU 2
	FIELD
	STORE 5
	LOAD 2
	PUSHU 3
	FIELD
	STORE 6
	LOAD 5
	PUSH "/balance/"
	CONCAT
	DUP 1
	LOAD 3
	CONCAT
	STORE 7
	LOAD 4
	CONCAT
	STORE 8
	LOAD 7          ; debit
	DUP 1
	HOST read
	LOAD 6
	SUB
	HOST write
	LOAD 8          ; credit
	DUP 1
	HOST read
	LOAD 6
	ADD
	HOST write
	LOAD 3
	HOST insert_verifier
	LOAD 1
	PUSHU 1
	ADD
	STORE 1
	JUMP loop
done:
	STOP
`

// TxTransferSrc takes frame(transfer...) as input.
const TxTransferSrc = `
	INPUT
	STORE 9
` + transferLoop

// TxIntentTransfersSrc takes an encoded IntentTransfers as input. The
// intents are left for the predicates to check.
const TxIntentTransfersSrc = `
	INPUT
	PUSHU 0
	FIELD
	STORE 9
` + transferLoop

var (
	TxTransferCode        = vm.MustAssemble(TxTransferSrc)
	TxIntentTransfersCode = vm.MustAssemble(TxIntentTransfersSrc)
)

// ProgramCode returns the code of a built-in program by name.
func ProgramCode(name string) ([]byte, error) {
	switch name {
	case ProgramTxTransfer:
		return TxTransferCode, nil
	case ProgramTxIntentTransfers:
		return TxIntentTransfersCode, nil
	case VPUser, VPToken, VPAlwaysAccept, VPAlwaysReject:
		return vm.NativeCode(name), nil
	}
	return nil, fmt.Errorf("unknown program %q", name)
}

package sync

import "github.com/holiman/uint256"

// Felt is a Starknet field element. It fits comfortably inside a uint256
// (the field's prime is just under 2^252), which is why every hash,
// address and storage value newtype below wraps one instead of a raw
// byte slice.
type Felt = uint256.Int

// BlockNumber identifies a block's position in the chain. Monotonic.
type BlockNumber uint64

// ClassHash identifies a Cairo-zero class definition.
type ClassHash struct{ Felt }

// SierraHash identifies a declared Sierra (Cairo 1) class.
type SierraHash struct{ Felt }

// CasmHash identifies a compiled-class (CASM) artifact for a Sierra class.
type CasmHash struct{ Felt }

// ContractAddress identifies a deployed contract.
type ContractAddress struct{ Felt }

// SystemContractAddress is the distinguished contract at address 1 whose
// storage updates are kept separate from ordinary contract updates.
var SystemContractAddress = ContractAddress{*uint256.NewInt(1)}

// StorageAddress is a key into a contract's storage.
type StorageAddress struct{ Felt }

// StorageValue is a value stored at a StorageAddress.
type StorageValue struct{ Felt }

// ContractNonce is a contract's transaction nonce.
type ContractNonce struct{ Felt }

// TransactionHash identifies a transaction.
type TransactionHash struct{ Felt }

// TransactionCommitment is the expected digest over a block's transactions,
// supplied externally and carried through unverified by this package.
type TransactionCommitment struct{ Felt }

// StateDiffCommitment is the expected digest over a block's state diff,
// supplied externally and carried through unverified by this package.
type StateDiffCommitment struct{ Felt }

// Equal reports whether two contract addresses refer to the same contract.
func (a ContractAddress) Equal(b ContractAddress) bool {
	return a.Felt.Eq(&b.Felt)
}

// IsSystemContract reports whether addr is the distinguished system
// contract at address 1.
func (a ContractAddress) IsSystemContract() bool {
	return a.Equal(SystemContractAddress)
}

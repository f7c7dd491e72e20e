package ledger

import (
	"encoding/json"
	"fmt"
)

// Op kinds understood by the ledger's transaction builder.
const (
	OpSplitCoin = "splitCoin"
	OpMoveCall  = "moveCall"
)

// Arg is a single argument of an op: a pure value, an object reference, or
// the result of a previous op in the same transaction.
type Arg struct {
	Pure   any    `json:"pure,omitempty"`
	Object string `json:"object,omitempty"`
	Result *int   `json:"result,omitempty"`
}

func PureArg(v any) Arg { return Arg{Pure: v} }

func ObjectArg(id string) Arg { return Arg{Object: id} }

// ResultArg references the output of the i-th op of the same transaction,
// e.g. the coin produced by a preceding split.
func ResultArg(i int) Arg { return Arg{Result: &i} }

type Op struct {
	Kind     string   `json:"kind"`
	Coin     string   `json:"coin,omitempty"`
	Amount   uint64   `json:"amount,omitempty"`
	Target   string   `json:"target,omitempty"`
	TypeArgs []string `json:"typeArgs,omitempty"`
	Args     []Arg    `json:"args,omitempty"`
}

// SplitCoinOp splits amount off the given coin object; the split result is
// addressable by later ops via ResultArg.
func SplitCoinOp(coinID string, amount uint64) Op {
	return Op{Kind: OpSplitCoin, Coin: coinID, Amount: amount}
}

// MoveCallOp invokes a ledger entrypoint.
func MoveCallOp(target string, typeArgs []string, args ...Arg) Op {
	return Op{Kind: OpMoveCall, Target: target, TypeArgs: typeArgs, Args: args}
}

// Transaction is an ordered list of ops executed atomically by the ledger.
type Transaction struct {
	Sender    string `json:"sender"`
	GasBudget uint64 `json:"gasBudget"`
	Ops       []Op   `json:"ops"`
}

// Encode produces the canonical byte form that gets signed and submitted.
func (t Transaction) Encode() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode transaction: %w", err)
	}
	return data, nil
}

// SignedTransaction carries the encoded transaction with its signature.
// Byte fields marshal as base64 on the wire.
type SignedTransaction struct {
	TxBytes   []byte `json:"txBytes"`
	Signature []byte `json:"signature"`
	PublicKey []byte `json:"publicKey"`
}

// Targets resolves the deployed quiz package's entrypoints and struct types.
type Targets struct {
	// Package is the on-ledger address of the deployed quiz package.
	Package string
	// RewardCoinType is the fully qualified reward coin type, e.g.
	// "<package>::uni::UNI".
	RewardCoinType string
}

func (t Targets) MintTarget() string { return t.Package + "::quiz::mint_to_sender" }
func (t Targets) PassTarget() string { return t.Package + "::quiz::pass" }

// QuizObjectType is the struct type of minted quiz objects.
func (t Targets) QuizObjectType() string {
	return fmt.Sprintf("%s::quiz::Quiz<%s>", t.Package, t.RewardCoinType)
}

// CoinObjectType is the struct type of coin objects holding coinType.
func CoinObjectType(coinType string) string {
	return fmt.Sprintf("0x2::coin::Coin<%s>", coinType)
}

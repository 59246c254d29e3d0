package models

type HashType string
type AccountAddress string

// Trace classification states. A trace moves from unclassified to exactly
// one of ok or failed; both are terminal.
const (
	ClassificationUnclassified = "unclassified"
	ClassificationOk           = "ok"
	ClassificationFailed       = "failed"
)

const TraceStateComplete = "complete"

// DescrTickTock marks system heartbeat transactions that carry no
// user-visible action.
const DescrTickTock = "tick_tock"

type Trace struct {
	TraceId             HashType
	State               string
	ClassificationState string
	Nodes               int64
	StartLt             int64
	Transactions        []*Transaction
	Edges               []TraceEdge
}

type Transaction struct {
	Hash     HashType
	TraceId  HashType
	Account  AccountAddress
	Lt       int64
	Descr    string
	Messages []*Message
}

type MessageContent struct {
	Hash HashType
	Body string
}

// Message is one inter-contract message. Destination is nil for messages
// with no on-chain recipient (external-out).
type Message struct {
	MsgHash        HashType
	Direction      string
	Source         *AccountAddress
	Destination    *AccountAddress
	CreatedLt      *int64
	MessageContent *MessageContent
}

type TraceEdge struct {
	TraceId HashType
	MsgHash HashType
	LeftTx  *HashType
	RightTx *HashType
}

// Action is one semantic unit extracted from a classified trace.
type Action struct {
	ActionId    HashType
	TraceId     HashType
	Type        string
	TxHashes    []HashType
	StartLt     int64
	EndLt       int64
	Source      *AccountAddress
	Destination *AccountAddress
	Success     bool
}

// Package events turns a hydrated trace into a tree of semantic blocks and
// flattens that tree into actions.
package events

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/toncenter/ton-indexer/ton-classify-go/models"
)

const (
	BlockRoot           = "root"
	BlockCallContract   = "call_contract"
	BlockTonTransfer    = "ton_transfer"
	BlockJettonTransfer = "jetton_transfer"
	BlockNftTransfer    = "nft_transfer"
	BlockNftSale        = "nft_sale"
)

// EventNode ties a block to the message that triggered it and the
// transaction that received the message.
type EventNode struct {
	Message *models.Message
	Tx      *models.Transaction
}

type Block struct {
	Type       string
	EventNodes []*EventNode
	Children   []*Block
}

// TriggerMessage returns the message that produced this block, if any.
func (b *Block) TriggerMessage() *models.Message {
	if len(b.EventNodes) == 0 {
		return nil
	}
	return b.EventNodes[0].Message
}

// Bfs enumerates the tree breadth-first, starting with the block itself.
func (b *Block) Bfs() []*Block {
	queue := []*Block{b}
	out := make([]*Block, 0, 1+len(b.Children))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		queue = append(queue, cur.Children...)
	}
	return out
}

// BlockToAction converts one block into an action owned by the given trace.
// The action id is derived from the trace id, the block type and the trigger
// message, so reclassifying the same trace graph yields identical actions.
func BlockToAction(b *Block, traceId models.HashType) models.Action {
	action := models.Action{
		TraceId: traceId,
		Type:    b.Type,
		Success: true,
	}
	for _, node := range b.EventNodes {
		if node.Tx == nil {
			continue
		}
		action.TxHashes = append(action.TxHashes, node.Tx.Hash)
		if action.StartLt == 0 || node.Tx.Lt < action.StartLt {
			action.StartLt = node.Tx.Lt
		}
		if node.Tx.Lt > action.EndLt {
			action.EndLt = node.Tx.Lt
		}
	}
	var trigger models.HashType
	if msg := b.TriggerMessage(); msg != nil {
		trigger = msg.MsgHash
		action.Source = msg.Source
		action.Destination = msg.Destination
	}
	sum := sha256.Sum256([]byte(string(traceId) + ":" + b.Type + ":" + string(trigger)))
	action.ActionId = models.HashType(base64.StdEncoding.EncodeToString(sum[:]))
	return action
}

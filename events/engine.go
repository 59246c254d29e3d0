package events

import (
	"context"
	"fmt"

	"github.com/toncenter/ton-indexer/ton-classify-go/models"
	"github.com/toncenter/ton-indexer/ton-classify-go/repository"
)

// Engine builds a block tree from a trace graph. The interface repository is
// passed explicitly so any backend variant can serve a single call.
type Engine interface {
	ProcessTrace(ctx context.Context, repo repository.InterfaceRepository, trace *models.Trace) (*Block, error)
}

// TreeEngine is the built-in pattern matcher. It creates one block per
// causal edge of the trace and resolves the block type from the interface
// records of the destination account.
type TreeEngine struct{}

func NewTreeEngine() *TreeEngine {
	return &TreeEngine{}
}

func (e *TreeEngine) ProcessTrace(ctx context.Context, repo repository.InterfaceRepository, trace *models.Trace) (*Block, error) {
	txByHash := make(map[models.HashType]*models.Transaction, len(trace.Transactions))
	msgByHash := make(map[models.HashType]*models.Message)
	for _, tx := range trace.Transactions {
		txByHash[tx.Hash] = tx
		for _, msg := range tx.Messages {
			if _, ok := msgByHash[msg.MsgHash]; !ok {
				msgByHash[msg.MsgHash] = msg
			}
		}
	}

	root := &Block{Type: BlockRoot}
	if len(trace.Transactions) > 0 {
		root.EventNodes = append(root.EventNodes, &EventNode{Tx: trace.Transactions[0]})
	}

	for _, edge := range trace.Edges {
		msg, ok := msgByHash[edge.MsgHash]
		if !ok {
			return nil, fmt.Errorf("edge message %s not present in trace %s", edge.MsgHash, trace.TraceId)
		}
		node := &EventNode{Message: msg}
		if edge.RightTx != nil {
			node.Tx = txByHash[*edge.RightTx]
		}
		if node.Tx == nil && edge.LeftTx != nil {
			node.Tx = txByHash[*edge.LeftTx]
		}

		blockType, err := e.resolveBlockType(ctx, repo, msg)
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, &Block{
			Type:       blockType,
			EventNodes: []*EventNode{node},
		})
	}
	return root, nil
}

// resolveBlockType picks the block type from the destination account's
// interface records. Lookup errors (including decode failures) propagate and
// fail the whole trace.
func (e *TreeEngine) resolveBlockType(ctx context.Context, repo repository.InterfaceRepository, msg *models.Message) (string, error) {
	if msg.Destination == nil {
		return BlockCallContract, nil
	}
	dest := *msg.Destination

	wallet, err := repo.GetJettonWallet(ctx, dest)
	if err != nil {
		return "", err
	}
	if wallet != nil {
		return BlockJettonTransfer, nil
	}

	item, err := repo.GetNFTItem(ctx, dest)
	if err != nil {
		return "", err
	}
	if item != nil {
		return BlockNftTransfer, nil
	}

	sale, err := repo.GetNftSale(ctx, dest)
	if err != nil {
		return "", err
	}
	if sale != nil {
		return BlockNftSale, nil
	}

	// Plain value transfer when the message carries no body to dispatch on.
	if msg.MessageContent == nil {
		return BlockTonTransfer, nil
	}
	return BlockCallContract, nil
}

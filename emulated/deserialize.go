// Package emulated decodes speculative traces delivered through the
// pub/sub stream. A speculative trace is stored as a Redis hash whose fields
// are msgpack node blobs linked by message hashes.
package emulated

import (
	"encoding/base64"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/toncenter/ton-indexer/ton-classify-go/models"
)

type hash [32]byte

var _ msgpack.CustomDecoder = (*hash)(nil)
var _ msgpack.CustomEncoder = hash{}

func (h hash) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(h[:])
}

func (h *hash) DecodeMsgpack(dec *msgpack.Decoder) error {
	bytes, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	if len(bytes) != 32 {
		return fmt.Errorf("invalid hash length: expected 32 bytes, got %d", len(bytes))
	}
	copy(h[:], bytes)
	return nil
}

func (h hash) base64() string {
	return base64.StdEncoding.EncodeToString(h[:])
}

type wireMessage struct {
	Hash        hash    `msgpack:"hash"`
	Source      *string `msgpack:"source"`
	Destination *string `msgpack:"destination"`
	CreatedLt   *uint64 `msgpack:"created_lt"`
	BodyBoc     string  `msgpack:"body_boc"`
}

type wireTransaction struct {
	Hash    hash          `msgpack:"hash"`
	Account string        `msgpack:"account"`
	Lt      uint64        `msgpack:"lt"`
	InMsg   *wireMessage  `msgpack:"in_msg"`
	OutMsgs []wireMessage `msgpack:"out_msgs"`
}

type traceNode struct {
	Transaction wireTransaction `msgpack:"transaction"`
	Emulated    bool            `msgpack:"emulated"`
}

// bodyHash computes the hash of a BOC-encoded message body.
func bodyHash(boc string) (models.HashType, error) {
	decoded, err := base64.StdEncoding.DecodeString(boc)
	if err != nil {
		return "", err
	}
	c, err := cell.FromBOC(decoded)
	if err != nil {
		return "", err
	}
	sum := c.Hash()
	return models.HashType(base64.StdEncoding.EncodeToString(sum)), nil
}

func (m *wireMessage) toMessage(direction string) (*models.Message, error) {
	msg := &models.Message{
		MsgHash:     models.HashType(m.Hash.base64()),
		Direction:   direction,
		Source:      (*models.AccountAddress)(m.Source),
		Destination: (*models.AccountAddress)(m.Destination),
	}
	if m.CreatedLt != nil {
		lt := int64(*m.CreatedLt)
		msg.CreatedLt = &lt
	}
	if m.BodyBoc != "" {
		h, err := bodyHash(m.BodyBoc)
		if err != nil {
			return nil, fmt.Errorf("hash message body: %w", err)
		}
		msg.MessageContent = &models.MessageContent{Hash: h, Body: m.BodyBoc}
	}
	return msg, nil
}

// DeserializeTrace rebuilds a trace graph from its hash map representation,
// walking nodes breadth-first from the root. Bookkeeping fields of the hash
// are never visited since the walk only follows message-hash links.
func DeserializeTrace(traceId string, raw map[string][]byte) (*models.Trace, error) {
	rootKey, ok := raw["root_node"]
	if !ok {
		return nil, fmt.Errorf("root_node not found in trace %s", traceId)
	}

	trace := &models.Trace{
		TraceId:             models.HashType(traceId),
		State:               models.TraceStateComplete,
		ClassificationState: models.ClassificationUnclassified,
	}

	type pending struct {
		key      string
		parentTx *models.HashType
		viaMsg   models.HashType
	}
	queue := []pending{{key: string(rootKey)}}
	seen := map[string]bool{string(rootKey): true}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		nodeData, ok := raw[item.key]
		if !ok {
			return nil, fmt.Errorf("node %s not found in trace %s", item.key, traceId)
		}
		var node traceNode
		if err := msgpack.Unmarshal(nodeData, &node); err != nil {
			return nil, fmt.Errorf("unmarshal node %s: %w", item.key, err)
		}

		tx := &models.Transaction{
			Hash:    models.HashType(node.Transaction.Hash.base64()),
			TraceId: trace.TraceId,
			Account: models.AccountAddress(node.Transaction.Account),
			Lt:      int64(node.Transaction.Lt),
			Descr:   "ord",
		}
		if node.Transaction.InMsg != nil {
			msg, err := node.Transaction.InMsg.toMessage("in")
			if err != nil {
				return nil, err
			}
			tx.Messages = append(tx.Messages, msg)
		}
		for i := range node.Transaction.OutMsgs {
			msg, err := node.Transaction.OutMsgs[i].toMessage("out")
			if err != nil {
				return nil, err
			}
			tx.Messages = append(tx.Messages, msg)
		}
		trace.Transactions = append(trace.Transactions, tx)
		if trace.StartLt == 0 || tx.Lt < trace.StartLt {
			trace.StartLt = tx.Lt
		}

		if item.parentTx != nil {
			txHash := tx.Hash
			trace.Edges = append(trace.Edges, models.TraceEdge{
				TraceId: trace.TraceId,
				MsgHash: item.viaMsg,
				LeftTx:  item.parentTx,
				RightTx: &txHash,
			})
		}

		for _, outMsg := range node.Transaction.OutMsgs {
			nextKey := outMsg.Hash.base64()
			if _, ok := raw[nextKey]; !ok || seen[nextKey] {
				continue
			}
			seen[nextKey] = true
			parent := tx.Hash
			queue = append(queue, pending{
				key:      nextKey,
				parentTx: &parent,
				viaMsg:   models.HashType(nextKey),
			})
		}
	}

	trace.Nodes = int64(len(trace.Transactions))
	return trace, nil
}

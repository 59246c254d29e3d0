// Package loader hydrates batches of traces from PostgreSQL for
// classification.
package loader

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toncenter/ton-indexer/ton-classify-go/models"
)

type Loader struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Loader {
	return &Loader{pool: pool}
}

// LoadTraces returns fully hydrated traces for the given ids: transactions
// with their messages and message content, plus trace-level edges. The whole
// batch is fetched in a constant number of queries regardless of batch size;
// the join fan-out over messages is deduplicated while scanning.
func (l *Loader) LoadTraces(ctx context.Context, ids []models.HashType) ([]*models.Trace, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	traces := make(map[models.HashType]*models.Trace, len(ids))
	order := make([]models.HashType, 0, len(ids))

	rows, err := l.pool.Query(ctx, `
		select trace_id, state, classification_state, nodes_, start_lt
		from traces
		where trace_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	for rows.Next() {
		var t models.Trace
		if err := rows.Scan(&t.TraceId, &t.State, &t.ClassificationState, &t.Nodes, &t.StartLt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		traces[t.TraceId] = &t
		order = append(order, t.TraceId)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate traces: %w", err)
	}
	rows.Close()

	txs := make(map[models.HashType]*models.Transaction)
	rows, err = l.pool.Query(ctx, `
		select T.hash, T.trace_id, T.account, T.lt, T.descr,
		       M.msg_hash, M.direction, M.source, M.destination, M.created_lt,
		       B.hash, B.body
		from transactions as T
		left join messages as M on M.tx_hash = T.hash
		left join message_contents as B on M.body_hash = B.hash
		where T.trace_id = ANY($1)
		order by T.lt asc, M.created_lt asc nulls first`, ids)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	for rows.Next() {
		var tx models.Transaction
		var msgHash, direction *string
		var source, destination *models.AccountAddress
		var createdLt *int64
		var contentHash, contentBody *string
		if err := rows.Scan(&tx.Hash, &tx.TraceId, &tx.Account, &tx.Lt, &tx.Descr,
			&msgHash, &direction, &source, &destination, &createdLt,
			&contentHash, &contentBody); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		cur, ok := txs[tx.Hash]
		if !ok {
			cur = &tx
			txs[tx.Hash] = cur
			if trace, ok := traces[tx.TraceId]; ok {
				trace.Transactions = append(trace.Transactions, cur)
			}
		}
		if msgHash == nil {
			continue
		}
		msg := &models.Message{
			MsgHash:     models.HashType(*msgHash),
			Source:      source,
			Destination: destination,
			CreatedLt:   createdLt,
		}
		if direction != nil {
			msg.Direction = *direction
		}
		if contentHash != nil {
			msg.MessageContent = &models.MessageContent{Hash: models.HashType(*contentHash)}
			if contentBody != nil {
				msg.MessageContent.Body = *contentBody
			}
		}
		cur.Messages = append(cur.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	rows.Close()

	rows, err = l.pool.Query(ctx, `
		select trace_id, msg_hash, left_tx, right_tx
		from trace_edges
		where trace_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query trace_edges: %w", err)
	}
	for rows.Next() {
		var e models.TraceEdge
		if err := rows.Scan(&e.TraceId, &e.MsgHash, &e.LeftTx, &e.RightTx); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan trace edge: %w", err)
		}
		if trace, ok := traces[e.TraceId]; ok {
			trace.Edges = append(trace.Edges, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace_edges: %w", err)
	}
	rows.Close()

	result := make([]*models.Trace, 0, len(order))
	for _, id := range order {
		result = append(result, traces[id])
	}
	return result, nil
}

// CollectAccounts returns the distinct set of accounts participating as
// transaction senders across the batch. This set is the warm-up input for
// the interface cache.
func CollectAccounts(traces []*models.Trace) mapset.Set[models.AccountAddress] {
	accounts := mapset.NewThreadUnsafeSet[models.AccountAddress]()
	for _, trace := range traces {
		for _, tx := range trace.Transactions {
			accounts.Add(tx.Account)
		}
	}
	return accounts
}

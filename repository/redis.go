package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/toncenter/ton-indexer/ton-classify-go/models"
)

// interfaceKeyPrefix namespaces interface blobs in Redis.
const interfaceKeyPrefix = "I_"

// interfaceTTL bounds staleness of cached records.
const interfaceTTL = 60 * time.Second

// RedisRepository is the write-through cache backend. The orchestrator warms
// it with PutInterfaces for every account of the current batch before
// classification reads from it, so within a batch the cache is guaranteed
// warm for any account appearing in that batch's transactions.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func interfaceKey(address models.AccountAddress) string {
	return interfaceKeyPrefix + string(address)
}

// PutInterfaces stores the full interface set of each address as one msgpack
// blob, pipelined into a single round trip. Addresses with zero known
// interfaces are not written.
func (r *RedisRepository) PutInterfaces(ctx context.Context, interfaces map[models.AccountAddress]models.AccountInterfaces) error {
	pipe := r.client.Pipeline()
	for address, entry := range interfaces {
		if entry.IsEmpty() {
			continue
		}
		data, err := msgpack.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode interfaces for %s: %w", address, err)
		}
		pipe.Set(ctx, interfaceKey(address), data, interfaceTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisRepository) getInterfaces(ctx context.Context, address models.AccountAddress) (*models.AccountInterfaces, error) {
	data, err := r.client.Get(ctx, interfaceKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry models.AccountInterfaces
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return nil, errors.Join(ErrDecodeFailed, err)
	}
	return &entry, nil
}

func (r *RedisRepository) GetJettonWallet(ctx context.Context, address models.AccountAddress) (*models.JettonWallet, error) {
	entry, err := r.getInterfaces(ctx, address)
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.JettonWallet, nil
}

func (r *RedisRepository) GetNFTItem(ctx context.Context, address models.AccountAddress) (*models.NFTItem, error) {
	entry, err := r.getInterfaces(ctx, address)
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.NFTItem, nil
}

func (r *RedisRepository) GetNftSale(ctx context.Context, address models.AccountAddress) (*models.NftSale, error) {
	entry, err := r.getInterfaces(ctx, address)
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.NftSale, nil
}

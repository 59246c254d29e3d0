package repository

import (
	"context"
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toncenter/ton-indexer/ton-classify-go/models"
)

// DbRepository resolves interface records with point queries against the
// relational store. No caching; it is the correctness reference the other
// backends are warmed from.
type DbRepository struct {
	pool *pgxpool.Pool
}

func NewDbRepository(pool *pgxpool.Pool) *DbRepository {
	return &DbRepository{pool: pool}
}

func (r *DbRepository) GetJettonWallet(ctx context.Context, address models.AccountAddress) (*models.JettonWallet, error) {
	var w models.JettonWallet
	err := r.pool.QueryRow(ctx,
		`select balance, address, owner, jetton from jetton_wallets where address = $1`,
		address).Scan(&w.Balance, &w.Address, &w.Owner, &w.Jetton)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query jetton wallet: %w", err)
	}
	return &w, nil
}

func (r *DbRepository) GetNFTItem(ctx context.Context, address models.AccountAddress) (*models.NFTItem, error) {
	var item models.NFTItem
	err := r.pool.QueryRow(ctx,
		`select address, init, index, collection_address, owner_address, content
		 from nft_items where address = $1`,
		address).Scan(&item.Address, &item.Init, &item.Index,
		&item.CollectionAddress, &item.OwnerAddress, &item.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query nft item: %w", err)
	}
	return &item, nil
}

func (r *DbRepository) GetNftSale(ctx context.Context, address models.AccountAddress) (*models.NftSale, error) {
	var sale models.NftSale
	err := r.pool.QueryRow(ctx,
		`select address, is_complete, marketplace_address, nft_address, nft_owner_address, full_price
		 from getgems_nft_sales where address = $1`,
		address).Scan(&sale.Address, &sale.IsComplete, &sale.MarketplaceAddress,
		&sale.NftAddress, &sale.NftOwnerAddress, &sale.FullPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query nft sale: %w", err)
	}
	return &sale, nil
}

// GatherInterfaces bulk-fetches all interface records for the given accounts
// with one query per record kind. Every requested account is present in the
// result, possibly with an empty record set, so callers can tell
// gathered-empty apart from never-gathered.
func GatherInterfaces(ctx context.Context, pool *pgxpool.Pool, accounts mapset.Set[models.AccountAddress]) (map[models.AccountAddress]models.AccountInterfaces, error) {
	result := make(map[models.AccountAddress]models.AccountInterfaces, accounts.Cardinality())
	addrs := accounts.ToSlice()
	for _, addr := range addrs {
		result[addr] = models.AccountInterfaces{}
	}

	rows, err := pool.Query(ctx,
		`select balance, address, owner, jetton from jetton_wallets where address = ANY($1)`, addrs)
	if err != nil {
		return nil, fmt.Errorf("query jetton_wallets: %w", err)
	}
	for rows.Next() {
		var w models.JettonWallet
		if err := rows.Scan(&w.Balance, &w.Address, &w.Owner, &w.Jetton); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan jetton wallet: %w", err)
		}
		entry := result[w.Address]
		entry.JettonWallet = &w
		result[w.Address] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jetton_wallets: %w", err)
	}
	rows.Close()

	rows, err = pool.Query(ctx,
		`select address, init, index, collection_address, owner_address, content
		 from nft_items where address = ANY($1)`, addrs)
	if err != nil {
		return nil, fmt.Errorf("query nft_items: %w", err)
	}
	for rows.Next() {
		var item models.NFTItem
		if err := rows.Scan(&item.Address, &item.Init, &item.Index,
			&item.CollectionAddress, &item.OwnerAddress, &item.Content); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan nft item: %w", err)
		}
		entry := result[item.Address]
		entry.NFTItem = &item
		result[item.Address] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nft_items: %w", err)
	}
	rows.Close()

	rows, err = pool.Query(ctx,
		`select address, is_complete, marketplace_address, nft_address, nft_owner_address, full_price
		 from getgems_nft_sales where address = ANY($1)`, addrs)
	if err != nil {
		return nil, fmt.Errorf("query getgems_nft_sales: %w", err)
	}
	for rows.Next() {
		var sale models.NftSale
		if err := rows.Scan(&sale.Address, &sale.IsComplete, &sale.MarketplaceAddress,
			&sale.NftAddress, &sale.NftOwnerAddress, &sale.FullPrice); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan nft sale: %w", err)
		}
		entry := result[sale.Address]
		entry.NftSale = &sale
		result[sale.Address] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate getgems_nft_sales: %w", err)
	}
	rows.Close()

	return result, nil
}

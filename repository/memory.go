package repository

import (
	"context"

	"github.com/toncenter/ton-indexer/ton-classify-go/models"
)

// InMemoryRepository serves lookups from a prebuilt map. When the address is
// absent from the map entirely, the lookup is delegated to the fallback
// repository (if any); an address that is present but lacks the requested
// kind resolves to nil without consulting the fallback. NftSale lookups
// never fall back.
type InMemoryRepository struct {
	interfaces map[models.AccountAddress]models.AccountInterfaces
	fallback   InterfaceRepository
}

func NewInMemoryRepository(interfaces map[models.AccountAddress]models.AccountInterfaces, fallback InterfaceRepository) *InMemoryRepository {
	return &InMemoryRepository{interfaces: interfaces, fallback: fallback}
}

func (r *InMemoryRepository) GetJettonWallet(ctx context.Context, address models.AccountAddress) (*models.JettonWallet, error) {
	if entry, ok := r.interfaces[address]; ok {
		return entry.JettonWallet, nil
	}
	if r.fallback != nil {
		return r.fallback.GetJettonWallet(ctx, address)
	}
	return nil, nil
}

func (r *InMemoryRepository) GetNFTItem(ctx context.Context, address models.AccountAddress) (*models.NFTItem, error) {
	if entry, ok := r.interfaces[address]; ok {
		return entry.NFTItem, nil
	}
	if r.fallback != nil {
		return r.fallback.GetNFTItem(ctx, address)
	}
	return nil, nil
}

func (r *InMemoryRepository) GetNftSale(ctx context.Context, address models.AccountAddress) (*models.NftSale, error) {
	if entry, ok := r.interfaces[address]; ok {
		return entry.NftSale, nil
	}
	return nil, nil
}

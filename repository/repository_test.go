package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/toncenter/ton-indexer/ton-classify-go/models"
)

func setupRedisRepository(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return NewRedisRepository(client), mr
}

func TestRedisRepository_RoundTrip(t *testing.T) {
	repo, _ := setupRedisRepository(t)
	ctx := context.Background()

	collection := models.AccountAddress("COLLECTION")
	owner := models.AccountAddress("OWNER")
	interfaces := map[models.AccountAddress]models.AccountInterfaces{
		"A": {
			JettonWallet: &models.JettonWallet{Balance: 100, Address: "A", Owner: "OWNER", Jetton: "JETTON"},
			NFTItem:      &models.NFTItem{Address: "A", Init: true, Index: 7, CollectionAddress: &collection, OwnerAddress: &owner},
		},
		"B": {
			NftSale: &models.NftSale{Address: "B", IsComplete: false, MarketplaceAddress: "MP", FullPrice: 25},
		},
	}
	if err := repo.PutInterfaces(ctx, interfaces); err != nil {
		t.Fatalf("PutInterfaces failed: %v", err)
	}

	wallet, err := repo.GetJettonWallet(ctx, "A")
	if err != nil {
		t.Fatalf("GetJettonWallet failed: %v", err)
	}
	if wallet == nil {
		t.Fatal("expected jetton wallet for A")
	}
	if wallet.Balance != 100 || wallet.Owner != "OWNER" || wallet.Jetton != "JETTON" {
		t.Errorf("unexpected jetton wallet: %+v", wallet)
	}

	item, err := repo.GetNFTItem(ctx, "A")
	if err != nil {
		t.Fatalf("GetNFTItem failed: %v", err)
	}
	if item == nil || item.Index != 7 || !item.Init || *item.CollectionAddress != collection {
		t.Errorf("unexpected nft item: %+v", item)
	}

	sale, err := repo.GetNftSale(ctx, "B")
	if err != nil {
		t.Fatalf("GetNftSale failed: %v", err)
	}
	if sale == nil || sale.MarketplaceAddress != "MP" || sale.FullPrice != 25 {
		t.Errorf("unexpected nft sale: %+v", sale)
	}

	// A has no sale record even though the key exists.
	sale, err = repo.GetNftSale(ctx, "A")
	if err != nil {
		t.Fatalf("GetNftSale failed: %v", err)
	}
	if sale != nil {
		t.Errorf("expected no sale for A, got %+v", sale)
	}
}

func TestRedisRepository_EmptyInterfacesNotWritten(t *testing.T) {
	repo, mr := setupRedisRepository(t)
	ctx := context.Background()

	interfaces := map[models.AccountAddress]models.AccountInterfaces{
		"EMPTY": {},
		"A":     {JettonWallet: &models.JettonWallet{Balance: 1, Address: "A"}},
	}
	if err := repo.PutInterfaces(ctx, interfaces); err != nil {
		t.Fatalf("PutInterfaces failed: %v", err)
	}

	if mr.Exists("I_EMPTY") {
		t.Error("empty interface set must not be written")
	}
	if !mr.Exists("I_A") {
		t.Error("expected key I_A to be written")
	}

	wallet, err := repo.GetJettonWallet(ctx, "EMPTY")
	if err != nil {
		t.Fatalf("GetJettonWallet failed: %v", err)
	}
	if wallet != nil {
		t.Errorf("expected nil for uncached address, got %+v", wallet)
	}
}

func TestRedisRepository_Expiry(t *testing.T) {
	repo, mr := setupRedisRepository(t)
	ctx := context.Background()

	err := repo.PutInterfaces(ctx, map[models.AccountAddress]models.AccountInterfaces{
		"A": {JettonWallet: &models.JettonWallet{Balance: 1, Address: "A"}},
	})
	if err != nil {
		t.Fatalf("PutInterfaces failed: %v", err)
	}
	if ttl := mr.TTL("I_A"); ttl != 60*time.Second {
		t.Errorf("expected 60s expiry, got %v", ttl)
	}
}

func TestRedisRepository_MalformedBlob(t *testing.T) {
	repo, mr := setupRedisRepository(t)
	ctx := context.Background()

	mr.Set("I_BAD", "\xc1 this is not msgpack")

	_, err := repo.GetJettonWallet(ctx, "BAD")
	if err == nil {
		t.Fatal("expected decode error for malformed blob")
	}
	if !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("expected ErrDecodeFailed, got %v", err)
	}
}

type stubRepository struct {
	wallets map[models.AccountAddress]*models.JettonWallet
	items   map[models.AccountAddress]*models.NFTItem
	sales   map[models.AccountAddress]*models.NftSale
}

func (s *stubRepository) GetJettonWallet(ctx context.Context, address models.AccountAddress) (*models.JettonWallet, error) {
	return s.wallets[address], nil
}

func (s *stubRepository) GetNFTItem(ctx context.Context, address models.AccountAddress) (*models.NFTItem, error) {
	return s.items[address], nil
}

func (s *stubRepository) GetNftSale(ctx context.Context, address models.AccountAddress) (*models.NftSale, error) {
	return s.sales[address], nil
}

func TestInMemoryRepository_FallbackOnAbsentAddress(t *testing.T) {
	ctx := context.Background()
	fallback := &stubRepository{
		wallets: map[models.AccountAddress]*models.JettonWallet{
			"B": {Balance: 5, Address: "B"},
		},
		sales: map[models.AccountAddress]*models.NftSale{
			"B": {Address: "B"},
		},
	}
	repo := NewInMemoryRepository(map[models.AccountAddress]models.AccountInterfaces{
		"A": {NFTItem: &models.NFTItem{Address: "A"}},
	}, fallback)

	// Address absent from the map delegates to the fallback.
	wallet, err := repo.GetJettonWallet(ctx, "B")
	if err != nil {
		t.Fatalf("GetJettonWallet failed: %v", err)
	}
	if wallet == nil || wallet.Balance != 5 {
		t.Errorf("expected fallback wallet for B, got %+v", wallet)
	}

	// Address present without the requested kind resolves to nil without
	// consulting the fallback.
	wallet, err = repo.GetJettonWallet(ctx, "A")
	if err != nil {
		t.Fatalf("GetJettonWallet failed: %v", err)
	}
	if wallet != nil {
		t.Errorf("expected nil wallet for A, got %+v", wallet)
	}

	// Sales never fall back.
	sale, err := repo.GetNftSale(ctx, "B")
	if err != nil {
		t.Fatalf("GetNftSale failed: %v", err)
	}
	if sale != nil {
		t.Errorf("expected nil sale without fallback, got %+v", sale)
	}
}

func TestInMemoryRepository_NoFallback(t *testing.T) {
	repo := NewInMemoryRepository(nil, nil)
	wallet, err := repo.GetJettonWallet(context.Background(), "MISSING")
	if err != nil {
		t.Fatalf("GetJettonWallet failed: %v", err)
	}
	if wallet != nil {
		t.Errorf("expected nil, got %+v", wallet)
	}
}

func emulatedBlob(t *testing.T, interfaces []interface{}) []byte {
	t.Helper()
	data, err := msgpack.Marshal([]interface{}{interfaces, nil})
	if err != nil {
		t.Fatalf("marshal blob: %v", err)
	}
	return data
}

func TestEmulatedRepository_JettonWallet(t *testing.T) {
	t.Parallel()
	blob := emulatedBlob(t, []interface{}{
		[]interface{}{emulatedKindJettonWallet, []interface{}{100, "A", "OWNER", "JETTON"}},
	})
	repo := NewEmulatedRepository(map[string][]byte{"A": blob})
	ctx := context.Background()

	wallet, err := repo.GetJettonWallet(ctx, "A")
	if err != nil {
		t.Fatalf("GetJettonWallet failed: %v", err)
	}
	if wallet == nil {
		t.Fatal("expected jetton wallet")
	}
	if wallet.Balance != 100 || wallet.Address != "A" || wallet.Owner != "OWNER" || wallet.Jetton != "JETTON" {
		t.Errorf("unexpected wallet: %+v", wallet)
	}

	// The positional encoding has no NftSale representation.
	sale, err := repo.GetNftSale(ctx, "A")
	if err != nil {
		t.Fatalf("GetNftSale failed: %v", err)
	}
	if sale != nil {
		t.Errorf("expected nil sale, got %+v", sale)
	}
}

func TestEmulatedRepository_NFTItem(t *testing.T) {
	t.Parallel()
	blob := emulatedBlob(t, []interface{}{
		[]interface{}{emulatedKindNFTItem, []interface{}{"N", true, 3, "COLLECTION", "OWNER", map[string]interface{}{"uri": "x"}}},
	})
	repo := NewEmulatedRepository(map[string][]byte{"N": blob})

	item, err := repo.GetNFTItem(context.Background(), "N")
	if err != nil {
		t.Fatalf("GetNFTItem failed: %v", err)
	}
	if item == nil {
		t.Fatal("expected nft item")
	}
	if item.Address != "N" || !item.Init || item.Index != 3 {
		t.Errorf("unexpected item: %+v", item)
	}
	if item.CollectionAddress == nil || *item.CollectionAddress != "COLLECTION" {
		t.Errorf("unexpected collection: %v", item.CollectionAddress)
	}
	if item.Content["uri"] != "x" {
		t.Errorf("unexpected content: %v", item.Content)
	}

	// Wallet lookup against the same blob scans past the NFTItem code.
	wallet, err := repo.GetJettonWallet(context.Background(), "N")
	if err != nil {
		t.Fatalf("GetJettonWallet failed: %v", err)
	}
	if wallet != nil {
		t.Errorf("expected nil wallet, got %+v", wallet)
	}
}

func TestEmulatedRepository_UnknownAddress(t *testing.T) {
	t.Parallel()
	repo := NewEmulatedRepository(map[string][]byte{})
	wallet, err := repo.GetJettonWallet(context.Background(), "MISSING")
	if err != nil {
		t.Fatalf("GetJettonWallet failed: %v", err)
	}
	if wallet != nil {
		t.Errorf("expected nil, got %+v", wallet)
	}
}

func TestEmulatedRepository_MalformedBlob(t *testing.T) {
	t.Parallel()
	repo := NewEmulatedRepository(map[string][]byte{"A": []byte("garbage")})
	_, err := repo.GetJettonWallet(context.Background(), "A")
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("expected ErrDecodeFailed, got %v", err)
	}
}

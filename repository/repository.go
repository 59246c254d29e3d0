// Package repository provides the interface cache: a multi-backend lookup
// layer for per-account contract metadata consumed during trace
// classification. All backends expose the same capability set and are
// substitutable per classification call.
package repository

import (
	"context"
	"errors"

	"github.com/toncenter/ton-indexer/ton-classify-go/models"
)

// ErrDecodeFailed wraps malformed cache blobs. Decode failures are hard
// errors of the enclosing classification attempt; treating them as a cache
// miss would silently misclassify the trace.
var ErrDecodeFailed = errors.New("failed to decode interface blob")

// InterfaceRepository resolves interface records by account address.
// A nil record with a nil error means the account has no known record of
// the requested kind.
type InterfaceRepository interface {
	GetJettonWallet(ctx context.Context, address models.AccountAddress) (*models.JettonWallet, error)
	GetNFTItem(ctx context.Context, address models.AccountAddress) (*models.NFTItem, error)
	GetNftSale(ctx context.Context, address models.AccountAddress) (*models.NftSale, error)
}

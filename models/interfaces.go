package models

// Interface records describe a known on-chain contract role of an account.
// The msgpack tags define the named-map wire encoding used by the
// write-through cache: a map of kind name to field map.

type JettonWallet struct {
	Balance float64        `msgpack:"balance"`
	Address AccountAddress `msgpack:"address"`
	Owner   AccountAddress `msgpack:"owner"`
	Jetton  AccountAddress `msgpack:"jetton"`
}

type NFTItem struct {
	Address           AccountAddress         `msgpack:"address"`
	Init              bool                   `msgpack:"init"`
	Index             float64                `msgpack:"index"`
	CollectionAddress *AccountAddress        `msgpack:"collection_address"`
	OwnerAddress      *AccountAddress        `msgpack:"owner_address"`
	Content           map[string]interface{} `msgpack:"content"`
}

type NftSale struct {
	Address            AccountAddress  `msgpack:"address"`
	IsComplete         bool            `msgpack:"is_complete"`
	MarketplaceAddress AccountAddress  `msgpack:"marketplace_address"`
	NftAddress         *AccountAddress `msgpack:"nft_address"`
	NftOwnerAddress    *AccountAddress `msgpack:"nft_owner_address"`
	FullPrice          float64         `msgpack:"full_price"`
}

// AccountInterfaces is the full set of interface kinds known for one
// account. One account may hold several kinds at once. Serialized with
// kind names as map keys; absent kinds are omitted from the blob.
type AccountInterfaces struct {
	JettonWallet *JettonWallet `msgpack:"JettonWallet,omitempty"`
	NFTItem      *NFTItem      `msgpack:"NFTItem,omitempty"`
	NftSale      *NftSale      `msgpack:"NftSale,omitempty"`
}

// IsEmpty reports whether no interface kind is known for the account.
// Empty sets are never written to the cache so that a missing key keeps
// meaning "not cached" rather than "known empty".
func (a AccountInterfaces) IsEmpty() bool {
	return a.JettonWallet == nil && a.NFTItem == nil && a.NftSale == nil
}

package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/toncenter/ton-indexer/ton-classify-go/models"
)

// Interface type codes of the speculative wire encoding. It is a compact
// positional format: each account blob decodes to a two-element array whose
// first element is a list of [code, field-tuple] pairs. NftSale has no code
// in this encoding.
const (
	emulatedKindJettonWallet = 0
	emulatedKindNFTItem      = 2
)

// EmulatedRepository is the self-contained backend for speculative traces.
// It is constructed straight from the trace hash map delivered over the
// stream; there is no backing store and no expiry.
type EmulatedRepository struct {
	data map[string][]byte
}

func NewEmulatedRepository(data map[string][]byte) *EmulatedRepository {
	return &EmulatedRepository{data: data}
}

type codedInterface struct {
	code   int
	fields []interface{}
}

func decodeCodedInterfaces(raw []byte) ([]codedInterface, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	outer, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, errors.Join(ErrDecodeFailed, err)
	}
	if outer < 1 {
		return nil, errors.Join(ErrDecodeFailed, fmt.Errorf("empty envelope"))
	}
	count, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, errors.Join(ErrDecodeFailed, err)
	}
	pairs := make([]codedInterface, 0, count)
	for i := 0; i < count; i++ {
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, errors.Join(ErrDecodeFailed, err)
		}
		if n != 2 {
			return nil, errors.Join(ErrDecodeFailed, fmt.Errorf("interface pair length %d", n))
		}
		code, err := dec.DecodeInt()
		if err != nil {
			return nil, errors.Join(ErrDecodeFailed, err)
		}
		fields, err := dec.DecodeSlice()
		if err != nil {
			return nil, errors.Join(ErrDecodeFailed, err)
		}
		pairs = append(pairs, codedInterface{code: code, fields: fields})
	}
	return pairs, nil
}

func asFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int:
		return float64(t), nil
	}
	return 0, errors.Join(ErrDecodeFailed, fmt.Errorf("expected number, got %T", v))
}

func asAddress(v interface{}) (models.AccountAddress, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.Join(ErrDecodeFailed, fmt.Errorf("expected address string, got %T", v))
	}
	return models.AccountAddress(s), nil
}

func asAddressPtr(v interface{}) (*models.AccountAddress, error) {
	if v == nil {
		return nil, nil
	}
	addr, err := asAddress(v)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func asBool(v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, errors.Join(ErrDecodeFailed, fmt.Errorf("expected bool, got %T", v))
	}
	return b, nil
}

func asContent(v interface{}) (map[string]interface{}, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.Join(ErrDecodeFailed, fmt.Errorf("expected content map, got %T", v))
	}
	return m, nil
}

func (r *EmulatedRepository) GetJettonWallet(ctx context.Context, address models.AccountAddress) (*models.JettonWallet, error) {
	raw, ok := r.data[string(address)]
	if !ok {
		return nil, nil
	}
	pairs, err := decodeCodedInterfaces(raw)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if p.code != emulatedKindJettonWallet {
			continue
		}
		if len(p.fields) < 4 {
			return nil, errors.Join(ErrDecodeFailed, fmt.Errorf("jetton wallet tuple length %d", len(p.fields)))
		}
		w := models.JettonWallet{}
		if w.Balance, err = asFloat(p.fields[0]); err != nil {
			return nil, err
		}
		if w.Address, err = asAddress(p.fields[1]); err != nil {
			return nil, err
		}
		if w.Owner, err = asAddress(p.fields[2]); err != nil {
			return nil, err
		}
		if w.Jetton, err = asAddress(p.fields[3]); err != nil {
			return nil, err
		}
		return &w, nil
	}
	return nil, nil
}

func (r *EmulatedRepository) GetNFTItem(ctx context.Context, address models.AccountAddress) (*models.NFTItem, error) {
	raw, ok := r.data[string(address)]
	if !ok {
		return nil, nil
	}
	pairs, err := decodeCodedInterfaces(raw)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if p.code != emulatedKindNFTItem {
			continue
		}
		if len(p.fields) < 6 {
			return nil, errors.Join(ErrDecodeFailed, fmt.Errorf("nft item tuple length %d", len(p.fields)))
		}
		item := models.NFTItem{}
		if item.Address, err = asAddress(p.fields[0]); err != nil {
			return nil, err
		}
		if item.Init, err = asBool(p.fields[1]); err != nil {
			return nil, err
		}
		if item.Index, err = asFloat(p.fields[2]); err != nil {
			return nil, err
		}
		if item.CollectionAddress, err = asAddressPtr(p.fields[3]); err != nil {
			return nil, err
		}
		if item.OwnerAddress, err = asAddressPtr(p.fields[4]); err != nil {
			return nil, err
		}
		if item.Content, err = asContent(p.fields[5]); err != nil {
			return nil, err
		}
		return &item, nil
	}
	return nil, nil
}

// GetNftSale always resolves to nil: the speculative encoding carries no
// NftSale representation.
func (r *EmulatedRepository) GetNftSale(ctx context.Context, address models.AccountAddress) (*models.NftSale, error) {
	return nil, nil
}

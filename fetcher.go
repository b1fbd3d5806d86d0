package assetcache

import (
	"context"
	"fmt"
)

// FetchFunc resolves one resource id to a locator (e.g. a data URI).
// It is only ever called with id > 0.
type FetchFunc func(ctx context.Context, id uint32) (string, error)

// Fetchers holds one fetch function per Kind. Every field is required.
type Fetchers struct {
	Profile  FetchFunc
	Champion FetchFunc
	Item     FetchFunc
	Spell    FetchFunc
	Perk     FetchFunc
}

// Registry dispatches a fetch to the function registered for the key's kind.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	byKind [KindPerk + 1]FetchFunc
}

// NewRegistry validates that every kind has a fetch function.
func NewRegistry(f Fetchers) (*Registry, error) {
	r := &Registry{}
	r.byKind[KindProfile] = f.Profile
	r.byKind[KindChampion] = f.Champion
	r.byKind[KindItem] = f.Item
	r.byKind[KindSpell] = f.Spell
	r.byKind[KindPerk] = f.Perk

	var missing []Kind
	for _, k := range Kinds() {
		if r.byKind[k] == nil {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFetcherError{Kinds: missing}
	}
	return r, nil
}

// Fetch calls the fetch function for kind.
func (r *Registry) Fetch(ctx context.Context, kind Kind, id uint32) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return r.byKind[kind](ctx, id)
}

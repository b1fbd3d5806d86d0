package lcu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/assetcache"
	"golang.org/x/sync/singleflight"
)

const gameDataPrefix = "/lol-game-data/assets/v1/"

var ErrNotFound = errors.New("lcu: asset id not in catalog")

// indexLoader fetches one game-data document and adds its id -> icon path entries.
type indexLoader func(ctx context.Context, c *Client, into map[uint32]string) error

type iconEntry struct {
	ID       uint32 `json:"id"`
	IconPath string `json:"iconPath"`
}

type championEntry struct {
	ID                 int32  `json:"id"` // -1 is the "None" placeholder
	SquarePortraitPath string `json:"squarePortraitPath"`
}

type perkstylesDoc struct {
	Styles []iconEntry `json:"styles"`
}

func addIcons(into map[uint32]string, entries []iconEntry) {
	for _, e := range entries {
		if e.ID != 0 && e.IconPath != "" {
			into[e.ID] = e.IconPath
		}
	}
}

func iconList(doc string) indexLoader {
	return func(ctx context.Context, c *Client, into map[uint32]string) error {
		var entries []iconEntry
		if err := c.getJSON(ctx, gameDataPrefix+doc, &entries); err != nil {
			return err
		}
		addIcons(into, entries)
		return nil
	}
}

func championSummary(ctx context.Context, c *Client, into map[uint32]string) error {
	var entries []championEntry
	if err := c.getJSON(ctx, gameDataPrefix+"champion-summary.json", &entries); err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID > 0 && e.SquarePortraitPath != "" {
			into[uint32(e.ID)] = e.SquarePortraitPath
		}
	}
	return nil
}

// rune trees (8000 Precision, ...) are displayed next to the runes themselves
func perkStyles(ctx context.Context, c *Client, into map[uint32]string) error {
	var doc perkstylesDoc
	if err := c.getJSON(ctx, gameDataPrefix+"perkstyles.json", &doc); err != nil {
		return err
	}
	addIcons(into, doc.Styles)
	return nil
}

var catalogLoaders = map[assetcache.Kind][]indexLoader{
	assetcache.KindChampion: {championSummary},
	assetcache.KindItem:     {iconList("items.json")},
	assetcache.KindSpell:    {iconList("summoner-spells.json")},
	assetcache.KindPerk:     {iconList("perks.json"), perkStyles},
}

// Catalog maps asset ids to icon paths, loading each kind's index on first
// use. Concurrent first uses share one load; a failed load is not remembered.
type Catalog struct {
	client *Client
	group  singleflight.Group

	mu      sync.RWMutex
	indexes map[assetcache.Kind]map[uint32]string
}

func NewCatalog(c *Client) *Catalog {
	return &Catalog{client: c, indexes: make(map[assetcache.Kind]map[uint32]string)}
}

// IconPath returns the client path of the icon for kind/id.
func (c *Catalog) IconPath(ctx context.Context, kind assetcache.Kind, id uint32) (string, error) {
	idx, err := c.Index(ctx, kind)
	if err != nil {
		return "", err
	}
	p, ok := idx[id]
	if !ok {
		return "", fmt.Errorf("%w: %s:%d", ErrNotFound, kind, id)
	}
	return p, nil
}

// Index returns the full id -> icon path index for kind. The map is shared
// and must not be modified.
func (c *Catalog) Index(ctx context.Context, kind assetcache.Kind) (map[uint32]string, error) {
	loaders, ok := catalogLoaders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no catalog", assetcache.ErrUnknownKind, kind)
	}

	c.mu.RLock()
	idx, ok := c.indexes[kind]
	c.mu.RUnlock()
	if ok {
		return idx, nil
	}

	// the load outlives the caller that started it; each caller waits on its own ctx
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(kind.String(), func() (any, error) {
		// Double-check: a load may have finished between the read above and DoChan.
		c.mu.RLock()
		idx, ok := c.indexes[kind]
		c.mu.RUnlock()
		if ok {
			return idx, nil
		}

		idx = make(map[uint32]string)
		for _, load := range loaders {
			if err := load(loadCtx, c.client, idx); err != nil {
				return nil, fmt.Errorf("lcu: load %s catalog: %w", kind, err)
			}
		}
		c.mu.Lock()
		c.indexes[kind] = idx
		c.mu.Unlock()
		return idx, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[uint32]string), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reset drops every loaded index, e.g. after a client patch.
func (c *Catalog) Reset() {
	c.mu.Lock()
	clear(c.indexes)
	c.mu.Unlock()
}

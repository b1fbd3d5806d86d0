package lcu

import (
	"context"
	"strconv"

	"github.com/unkn0wn-root/assetcache"
)

// Fetchers wires client and catalog into one fetch function per kind.
// Profile icons are addressed by id directly; everything else is looked up
// in the catalog first.
func Fetchers(client *Client, catalog *Catalog) assetcache.Fetchers {
	byCatalog := func(kind assetcache.Kind) assetcache.FetchFunc {
		return func(ctx context.Context, id uint32) (string, error) {
			p, err := catalog.IconPath(ctx, kind, id)
			if err != nil {
				return "", err
			}
			return client.GetImage(ctx, p)
		}
	}
	return assetcache.Fetchers{
		Profile: func(ctx context.Context, id uint32) (string, error) {
			return client.GetImage(ctx, ProfileIconPath(id))
		},
		Champion: byCatalog(assetcache.KindChampion),
		Item:     byCatalog(assetcache.KindItem),
		Spell:    byCatalog(assetcache.KindSpell),
		Perk:     byCatalog(assetcache.KindPerk),
	}
}

func ProfileIconPath(id uint32) string {
	return gameDataPrefix + "profile-icons/" + strconv.FormatUint(uint64(id), 10) + ".jpg"
}

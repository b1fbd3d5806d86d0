// Package assetcache resolves displayable asset identifiers (profile icons,
// champions, items, summoner spells, runes) to locators such as data URIs,
// caching each result and fetching every key at most once at a time.
//
// Components:
//   - Registry: one FetchFunc per Kind; the only place that does I/O.
//   - Cache: the store (key -> locator) and the in-flight table (key -> Future).
//     A key is never in both. Failed fetches are never cached.
//   - Binding: one consumer's view of a key. Unbind or Rebind discards the
//     outcome of a fetch the consumer no longer cares about without cancelling
//     it for anyone else.
//   - Provider + Codec + GenStore: where the locator bytes live. Frames carry
//     the key and the generation observed when the fetch started, so entries
//     cleared by any process sharing the GenStore are rejected on read.
//
// Keys:
//
//	asset:<ns>:<kind>:<id> - provider key
//	gen:<ns>:<storageKey>  - generation counter (RedisGenStore)
//
// Identifier 0 means "no resource": it resolves to an empty locator and is
// never stored or fetched.
//
// Typical use:
//
//	b := cache.Bind(assetcache.KindChampion, 103, func(s assetcache.State) { render(s) })
//	render(b.State()) // Ready if cached, else Pending until onChange fires
//	...
//	b.Rebind(assetcache.KindChampion, 84) // user switched champion
//	b.Unbind()                            // view torn down
package assetcache

// Package recordcache is a cross-process cache for records of a backing data
// store. Workers never coordinate directly: every cached payload is stored
// under a versioned key, and the current version of each logical key lives in
// a shared version store. A mutation renews (or deletes) the version, which
// makes everything cached under older versions unreachable at once.
//
// Components:
//   - VersionStore: logical clock per cache key on top of a provider.Provider.
//   - Query: equality/IN constraints, sort orders and a limit, plus a cache key.
//   - Strategies: UniqueIndex (identity and unique attributes), Index
//     (attribute value -> id list), FullTable, and the per-scope RequestCache.
//   - Dispatcher: per entity, picks the first strategy that can answer a
//     query and fans record changes out to all of them.
//   - Registry: explicit owner of dispatchers, options, status and scopes.
//
// Keys:
//
//	rc/<prefix>/<id>             identity
//	rc/<prefix>/<attr>:<value>   unique attribute
//	rc/<prefix>/<attr>=<value>   index id list
//	rc/<prefix>/full-table       whole table
//
// The payload for a key K at version V lives under KvV.
//
// Read path:
//
//	m, _ := reg.Register(cfg, src)
//	people, err := m.Find(ctx, recordcache.NewQuery().Where("id", 1, 2))
//
// Write path (after commit):
//
//	m.Updated(ctx, rec, map[string]any{"name": "old name"})
package recordcache

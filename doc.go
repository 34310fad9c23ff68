// Package cachemodel is a caching layer in front of a persistent entity store.
// It memoizes per-entity computations and lookups, keeps them coherent when
// entities change, and avoids redundant recomputation under concurrent access.
// It only needs a plain key/value store with TTLs: no transactions, no pub/sub,
// no distributed locks.
//
// Components:
//   - Provider: byte store with TTL (Ristretto, BigCache, Redis).
//   - GenStore: one generation token per namespace. Every key minted inside a
//     namespace embeds the token; FlushNamespace bumps it and thereby orphans
//     every earlier key in O(1). Orphans expire via TTL.
//   - Signature sets: an enumerable index of every key a type-scoped memoized
//     function has minted; MarkAllDirty writes a dirty marker next to each.
//   - Method[V]: get-or-compute-and-store around any computation, honouring
//     dirty markers and optional stale-while-revalidate through an Enqueuer.
//   - Coordinator: entity save/delete hooks (denormalized fields before the
//     write, by-field purge and namespace flush after it).
//   - Manager[E]: one entity type's cached lookups, queries and warm-up.
//
// Keys:
//
//	{Type}:{ID}:{part}...:#{gen}     namespaced (instance)
//	{Type}:{part}...:#{gen}          namespaced (type)
//	{Type}:by_{field}:{value}        by-field lookups, stamped with the
//	                                 entity's instance generation
//	{Type}:{name}:{digest}           signature-tracked calls
//	#sigs:{prefix}                   signature sets
//	{key}:#dirty                     dirty markers
//	{Type}:#fields                   by-field index
//
// Dirty markers:
//
//	DIRTY         value is stale. Served while a revalidation job is enqueued
//	              (Async), recomputed synchronously otherwise.
//	FORCE_UPDATE  a revalidation is in flight. The next read recomputes
//	              synchronously and clears the marker; only the read path
//	              clears it, never the worker.
package cachemodel

// Package kv provides the versioned key-value primitives the session store
// is built on: string keys with TTL expiry plus named sorted indexes for
// ordered lookups. Backed by SQLite so a single file under data_dir holds
// everything.
package kv

// Package catalog implements the Catalog: the persistent store of global
// server records, profile tags, and profile metadata that survives across
// mcpm process runs.
//
// A profile exists if either a metadata record or some server's tag
// references it. The store is a mutex-guarded, file-backed cache that
// writes two JSON documents (servers.json, profiles_metadata.json)
// atomically via write-to-temp-then-rename, so a crash or concurrent
// reader never observes a half-written catalog.
package catalog

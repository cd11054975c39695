// Package ormstore provides a small object-to-store mapper for OAuth entities.
//
// Every persistent record is an Entity: an opaque string ID, a bag of typed
// attributes (string, string list, or bool), and an optional expiration
// deadline. Entities are grouped into kinds, described by an explicit Kind
// descriptor (key namespace, ID length, tagging policy) that is passed to a
// backend when obtaining an Engine.
//
// Tagged kinds additionally maintain a secondary index: each scalar attribute
// is registered under a derived "attribute:value" tag, enabling equality
// lookups via Find without a full scan.
//
// Implementations are provided in subpackages:
//   - ormstore/memory: in-memory engine for development and testing
//   - ormstore/valkey: Valkey/Redis-compatible engine for production
package ormstore

// Package store provides SQLite-backed storage for the sirad stores.
//
// Every logical store (Data, PII, Link, Research) is its own SQLite file
// opened through Open. Tables are created, filled and dropped wholesale:
// a dataset's table is always rebuilt from scratch, never patched.
//
// # Critical Patterns
//
// Statements are built as queryir values and compiled by querysql. Dataset
// and column names are validated identifiers; literal values are always
// bound parameters.
//
// Reads return rows in a deterministic order (explicit ORDER BY, or rowid
// for single tables).
//
// Cross-store joins run inside a Session, which pins one connection so that
// ATTACH state survives across statements and is detached on Close.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store

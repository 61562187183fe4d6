// Package store provides the embedded-engine and persistence
// collaborators the row mapper depends on.
//
// Store is a thin SQLite wrapper: prepare/execute/query plus table
// introspection through PRAGMA table_info. It owns nothing above the SQL
// surface; schema decisions live in the reconciler and statement text in
// sqlbuild.
//
// BlobStore is the key-value persistence collaborator used for the
// schema snapshot file. The file-backed implementation writes through a
// temp file and rename so a crash never leaves a torn snapshot.
package store

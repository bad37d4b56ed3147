// Package gateway is the permissioned data-access layer in front of the
// document store.
//
// Every operation takes the caller's session token, verifies it, checks the
// principal's capability for (collection, action) and scopes the request to
// the principal's organization before touching storage. The organization id
// always comes from the verified token; a client-supplied orgId is
// overwritten.
//
// # Soft delete
//
// Delete only flags a document (deleted, deletedAt, deletedBy). The gateway
// owns exclusion: Query and Aggregate skip flagged documents unless
// QueryOptions.IncludeDeleted is set, and Update or Delete of a flagged
// document returns ErrNotFound. Deleting twice therefore fails the second
// time.
//
// # Users
//
// A plaintext "password" on create or update never reaches storage; it is
// replaced by an Argon2id credential and passwordChangedAt is stamped.
// passwordHash, salt and password are stripped from every returned document
// and cannot be filtered, sorted or grouped on.
//
// # Errors
//
// Operations return auth errors, validation.Errors, ErrNotFound or
// *StorageError. KindOf classifies any of them for the transport layer.
// Storage calls are bounded by Config.StorageTimeout and never retried here.
//
// # Batches
//
// Batch applies one operation to up to Config.MaxBatchItems items. Items
// are independent: a failing item is reported in its own slot and the rest
// continue. There is no rollback.
package gateway

// Package mongostore implements store.Store on MongoDB.
//
// Filters and pipelines are translated to their native BSON forms, so
// aggregation runs server-side. Ids are ObjectIDs in the database and hex
// strings at the store boundary.
package mongostore

// Package store defines the document store consumed by the gateway and the
// auth service, plus the filter and aggregation-pipeline model shared by
// every backend.
//
// Two backends exist: sqlitestore (SQLite JSON1, the default) and
// mongostore. Both treat documents as JSON objects keyed by a string "_id".
//
// Filters are maps from field name to either a scalar (equality) or an
// operator object:
//
//	store.Filter{"orgId": "o1", "deleted": store.Filter{"$ne": true}}
//
// Supported operators are $eq, $ne, $in, $gt, $gte, $lt and $lte. $ne
// matches documents where the field is missing.
package store

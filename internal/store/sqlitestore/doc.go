// Package sqlitestore implements store.Store on SQLite using the JSON1
// functions.
//
// All collections share the documents table created by the embedded
// migrations. Filters compile to json_extract predicates with bound
// parameters. Aggregation pushes a leading $match into SQL and runs the
// remaining stages with store.Apply.
package sqlitestore

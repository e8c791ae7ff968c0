// Package itemsvc implements the item operations behind the HTTP API. Every
// operation validates its input, opens one database connection, runs a single
// statement and closes the connection before returning.
package itemsvc

// Package repository holds the item queries, built with Bun on a single
// connection. Values are always bound through Bun placeholders.
package repository

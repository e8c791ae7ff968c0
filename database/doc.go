// Package database opens authenticated connections to the item store. Every
// physical connection logs in with a credential obtained from a
// credential.TokenProvider, either once per request or through a pooled
// connector that refreshes cached tokens. It also runs the startup schema
// migrations, classifies driver errors and hosts the bun query hooks.
package database

// Package credential obtains short-lived bearer tokens that are used as
// database passwords, either from the ambient Azure identity of the process
// or from a static secret in local setups. It covers the provider
// configuration and mode selection, Microsoft Entra token requests through
// azidentity, an expiry-aware token cache used by pooled connections, and the
// AuthError returned when no token can be obtained.
package credential

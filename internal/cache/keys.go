package cache

import "fmt"

const KeyCatalogPrefix = "catalog:"

// KeyCatalog scopes the serialized catalog to a store version so a reload
// never serves a stale payload.
func KeyCatalog(version string) string {
	return fmt.Sprintf("%s%s", KeyCatalogPrefix, version)
}

package cache

import "fmt"

const (
	KeyCatalogVersion = "catalog:version"
)

// KeyCatalog is the compressed catalog snapshot for one mirror version.
func KeyCatalog(version string) string {
	return fmt.Sprintf("catalog:%s", version)
}

package config

import (
	"fmt"
	"slices"
)

var (
	validCatalogStorage = []string{"inmem", "redis", "mysql"}
	validLoggerTypes    = []string{"stdout", "none"}
)

// validate checks the loaded contents for values the rest of the system
// cannot work with. It returns one message per failure.
func (c *configContents) validate() []string {
	var failures []string

	if !slices.Contains(validCatalogStorage, c.Catalog.Storage) {
		failures = append(failures, fmt.Sprintf("Catalog.Storage must be one of %v, got %q", validCatalogStorage, c.Catalog.Storage))
	}
	if !slices.Contains(validLoggerTypes, c.Logger.Type) {
		failures = append(failures, fmt.Sprintf("Logger.Type must be one of %v, got %q", validLoggerTypes, c.Logger.Type))
	}
	if c.Logger.Level == UnknownLevel {
		failures = append(failures, "Logger.Level must be set")
	}

	switch c.Catalog.Storage {
	case "redis":
		if c.Redis.Host == "" {
			failures = append(failures, "Redis.Host is required when Catalog.Storage is redis")
		}
	case "mysql":
		if c.MySQL.DSN == "" {
			failures = append(failures, "MySQL.DSN is required when Catalog.Storage is mysql")
		}
	}

	if !c.General.Sharding {
		if c.Storage.URI == "" {
			failures = append(failures, "Storage.URI is required when sharding is disabled")
		} else if _, err := storageScheme(c.Storage.URI); err != nil {
			failures = append(failures, fmt.Sprintf("Storage.URI is invalid: %v", err))
		}
	}

	for name, limit := range map[string]int{
		"Limits.DefaultQueuePaging":   c.Limits.DefaultQueuePaging,
		"Limits.DefaultMessagePaging": c.Limits.DefaultMessagePaging,
		"Limits.DefaultClaimLimit":    c.Limits.DefaultClaimLimit,
	} {
		if limit <= 0 {
			failures = append(failures, fmt.Sprintf("%s must be positive, got %d", name, limit))
		}
	}

	slices.Sort(failures)
	return failures
}

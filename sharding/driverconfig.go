package sharding

import (
	"fmt"
	"maps"
	"net/url"

	"github.com/honeycombio/queuerouter/config"
	"github.com/honeycombio/queuerouter/storage"
)

// Keys lifted out of the merged option layers into DriverConfig fields.
const (
	optDynamic = "dynamic"
	optStorage = "storage"
	optURI     = "uri"
)

// NewDriverConfig merges three option layers into the configuration a
// backend is built from. Later layers win: backend-specific options override
// backend-type options, which override the general ones.
func NewDriverConfig(general, backendType, backendSpecific map[string]any) storage.DriverConfig {
	merged := make(map[string]any, len(general)+len(backendType)+len(backendSpecific))
	maps.Copy(merged, general)
	maps.Copy(merged, backendType)
	maps.Copy(merged, backendSpecific)

	cfg := storage.DriverConfig{}
	if v, ok := merged[optDynamic]; ok {
		cfg.Dynamic, _ = v.(bool)
		delete(merged, optDynamic)
	}
	if v, ok := merged[optStorage]; ok {
		cfg.Storage = asString(v)
		delete(merged, optStorage)
	}
	if v, ok := merged[optURI]; ok {
		cfg.URI = asString(v)
		delete(merged, optURI)
	}
	cfg.Options = merged
	return cfg
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// LayeredDriverConfig builds the configuration of the backend at uri. The
// general layer carries the dynamic flag and the paging limits, the
// backend-type layer comes from the Backends section for the URI scheme, and
// options go on top.
func LayeredDriverConfig(c config.Config, dynamic bool, uri string, options map[string]any) (storage.DriverConfig, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return storage.DriverConfig{}, fmt.Errorf("parsing storage uri: %w", err)
	}

	limits := c.GetLimitsConfig()
	general := map[string]any{
		optDynamic:       dynamic,
		"queue_paging":   limits.DefaultQueuePaging,
		"message_paging": limits.DefaultMessagePaging,
		"claim_limit":    limits.DefaultClaimLimit,
	}

	backendType := c.GetBackendOptions(u.Scheme)
	backendType[optStorage] = u.Scheme

	specific := maps.Clone(options)
	if specific == nil {
		specific = make(map[string]any)
	}
	specific[optURI] = uri

	return NewDriverConfig(general, backendType, specific), nil
}

package cache

import (
	"time"

	cache_pkg "github.com/patrickmn/go-cache"
)

// Config contains configuration for the in-memory cache
type Config struct {
	DefaultExpiration time.Duration `json:"default_expiration" yaml:"default_expiration" mapstructure:"default_expiration" default:"5m"`
	CleanupInterval   time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" mapstructure:"cleanup_interval" default:"10m"`
}

// DefaultConfig returns the cache configuration used when nothing else is configured
func DefaultConfig() *Config {
	return &Config{
		DefaultExpiration: 5 * time.Minute,
		CleanupInterval:   10 * time.Minute,
	}
}

// Handler is an expiring in-memory key/value store
type Handler struct {
	client *cache_pkg.Cache
}

func New(cfg *Config) (*Handler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	client := cache_pkg.New(cfg.DefaultExpiration, cfg.CleanupInterval)
	return &Handler{
		client: client,
	}, nil
}

// Get returns the cached value for key
func (h *Handler) Get(key string) (interface{}, bool) {
	return h.client.Get(key)
}

// Set stores value under key with the default expiration
func (h *Handler) Set(key string, value interface{}) {
	h.client.SetDefault(key, value)
}

// Delete evicts key
func (h *Handler) Delete(key string) {
	h.client.Delete(key)
}

// Len returns the number of cached items, including expired ones not yet cleaned up
func (h *Handler) Len() int {
	return h.client.ItemCount()
}

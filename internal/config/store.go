package config

// StoreConfig configures the solution store backend.
type StoreConfig struct {
	// Backend selects the object store driver: "fs" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the root directory for the fs backend.
	Path string `yaml:"path"`

	// DatabasePath is the SQLite file for the sqlite backend.
	DatabasePath string `yaml:"database_path"`

	// DefaultTTLDays applies to saves that do not specify a TTL.
	DefaultTTLDays int `yaml:"default_ttl_days"`

	// MaxAgeDays, when > 0, marks solutions older than this stale
	// regardless of their TTL.
	MaxAgeDays int `yaml:"max_age_days"`
}

// TaxonomyConfig configures process taxonomy loading.
type TaxonomyConfig struct {
	// Domain selects the taxonomy table. Only "manufacturing" ships today.
	Domain string `yaml:"domain"`

	// TablePath points at a user taxonomy YAML merged over the built-in
	// table. Empty means built-in only.
	TablePath string `yaml:"table_path"`

	// HotReload watches TablePath and swaps the table on change.
	HotReload bool `yaml:"hot_reload"`
}

package config

// IndexConfig holds search index naming and settings
type IndexConfig struct {
	Name     string `env:"NAME" envDefault:"neos-content"`
	BulkSize int    `env:"BULK_SIZE" envDefault:"500"`
	Shards   int    `env:"SHARDS" envDefault:"1"`
	Replicas int    `env:"REPLICAS" envDefault:"0"`
}

package config

import "github.com/caarlos0/env/v11"

// Endpoints holds deployment-specific addresses for the KV store, the
// relational store, the message bus, and the inverted-index store.
// These are read from the environment, never from a committed config
// file, since they vary per deployment (spec §6 "Environment").
type Endpoints struct {
	RedisAddr      string   `env:"CRAWLGRAPH_REDIS_ADDR" envDefault:"localhost:6379"`
	PostgresDSN    string   `env:"CRAWLGRAPH_POSTGRES_DSN" envDefault:"postgres://localhost:5432/crawlgraph"`
	KafkaBrokers   []string `env:"CRAWLGRAPH_KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	BleveIndexPath string   `env:"CRAWLGRAPH_BLEVE_PATH" envDefault:"./data/web-pages.bleve"`
	AdminListen    string   `env:"CRAWLGRAPH_ADMIN_LISTEN" envDefault:":8081"`
	PublicListen   string   `env:"CRAWLGRAPH_PUBLIC_LISTEN" envDefault:":8080"`
}

// LoadEndpoints parses Endpoints from the process environment.
func LoadEndpoints() (Endpoints, error) {
	var e Endpoints
	if err := env.Parse(&e); err != nil {
		return Endpoints{}, err
	}
	return e, nil
}

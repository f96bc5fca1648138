package internal

import (
	"github.com/starford/othala/internal/oracle"
	"github.com/starford/othala/internal/similarity"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	oracle     oracle.Oracle
	similarity similarity.Index
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOracle overrides the content oracle built from configuration.
// Mostly useful for tests and for embedding the server in another process.
func WithOracle(orc oracle.Oracle) Option {
	return func(a *application) {
		a.oracle = orc
	}
}

// WithSimilarity overrides the similarity index built from configuration.
func WithSimilarity(idx similarity.Index) Option {
	return func(a *application) {
		a.similarity = idx
	}
}

// Package feedlist reads the configured RSS source URLs.
package feedlist

import (
	"log/slog"

	"github.com/spf13/viper"
)

// Loader reads feed source URLs from a JSON file of the shape
// {"feeds": ["https://...", ...]}.
type Loader struct {
	path string
}

func New(path string) *Loader {
	return &Loader{path: path}
}

// Load returns the configured source URLs. A missing or malformed file is
// not fatal: it logs a warning and reports no sources, and the next
// aggregation cycle re-reads the file.
func (l *Loader) Load() []string {
	v := viper.New()
	v.SetConfigFile(l.path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		slog.Warn("could not load feed list", "path", l.path, "error", err)
		return nil
	}

	return v.GetStringSlice("feeds")
}

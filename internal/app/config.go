package app

import (
	"github.com/uniedit/payflow/internal/infra/config"
)

// LoadConfig loads application configuration. A non-empty path selects an
// explicit file instead of the search paths.
func LoadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

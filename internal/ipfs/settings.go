package ipfs

import (
	"context"
	"strings"
)

// Defaults used whenever the settings collaborator has nothing to say.
const (
	DefaultAPIEndpoint = "http://127.0.0.1:5001/api/v0"
	DefaultGateway     = "https://ipfs.io/ipfs/"
)

// Settings are the endpoint values resolved for one call. Blank fields mean
// "use the default".
type Settings struct {
	APIEndpoint string `json:"apiEndpoint,omitempty" yaml:"api_endpoint"`
	Gateway     string `json:"gateway,omitempty" yaml:"gateway"`
}

// SettingsProvider supplies endpoint settings. It is queried on every call so
// that changes apply without a restart.
type SettingsProvider interface {
	Settings(ctx context.Context) (Settings, error)
}

// SettingsFunc adapts a function to SettingsProvider.
type SettingsFunc func(ctx context.Context) (Settings, error)

func (f SettingsFunc) Settings(ctx context.Context) (Settings, error) {
	return f(ctx)
}

// DefaultSettings returns the hard-coded endpoint defaults.
func DefaultSettings() Settings {
	return Settings{APIEndpoint: DefaultAPIEndpoint, Gateway: DefaultGateway}
}

// WithDefaults fills blank fields from def.
func (s Settings) WithDefaults(def Settings) Settings {
	if strings.TrimSpace(s.APIEndpoint) == "" {
		s.APIEndpoint = def.APIEndpoint
	}
	if strings.TrimSpace(s.Gateway) == "" {
		s.Gateway = def.Gateway
	}
	return s
}

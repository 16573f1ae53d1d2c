package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_HTTP_ADDR is the relay base URL, e.g. http://localhost:3001. The suite is skipped when empty.
	HTTPAddr string `envconfig:"RELAY_HTTP_ADDR"`
	GrpcAddr string `envconfig:"RELAY_GRPC_ADDR" default:"localhost:3002"`
	// E2E_DEBUG_JSON dumps every frame received
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

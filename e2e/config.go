package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ChatURL string `envconfig:"CHAT_URL" default:"ws://localhost:8080/ws"`
	APIURL  string `envconfig:"API_URL" default:"http://localhost:8080"`
	// SHOP_KEY and the staff credentials come from `admin create-shop` and `admin add-staff`.
	// The suite is skipped without them.
	ShopKey       string `envconfig:"SHOP_KEY"`
	StaffEmail    string `envconfig:"STAFF_EMAIL"`
	StaffPassword string `envconfig:"STAFF_PASSWORD"`
	// E2E_DEBUG_JSON dumps every frame
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

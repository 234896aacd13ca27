package global

import (
	"github.com/caarlos0/env/v11"
)

// AppConfig is process-level configuration for the chat client. Component
// options (connection timeouts, typing debounce) live on the component confs
// and are defaulted there.
type AppConfig struct {
	ServerURL  string `env:"CHAT_SERVER_URL" envDefault:"ws://localhost:5000/socket"`
	APIBaseURL string `env:"CHAT_API_URL" envDefault:"http://localhost:5000/api"`

	// Session store. With a redis address set the identity record is shared
	// across processes; otherwise the token env var seeds an in-memory store.
	RedisAddr     string `env:"CHAT_REDIS_ADDR"`
	RedisPassword string `env:"CHAT_REDIS_PASSWORD"`
	RedisDB       int    `env:"CHAT_REDIS_DB" envDefault:"0"`
	SessionKey    string `env:"CHAT_SESSION_KEY" envDefault:"chat:session:userinfo"`
	AuthToken     string `env:"CHAT_AUTH_TOKEN"`

	NodeID int64 `env:"CHAT_NODE_ID" envDefault:"1"`
}

// Load reads AppConfig from the environment.
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

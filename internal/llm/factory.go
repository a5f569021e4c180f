package llm

import (
	"fmt"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/pagesmith/internal/config"
)

// New builds the configured provider client, wrapped in a circuit breaker
// when enabled.
func New(gen config.GenerationConfig, br config.BreakerConfig, logger *slog.Logger) (Client, error) {
	httpClient := &http.Client{Timeout: gen.RequestTimeout}
	var c Client
	switch gen.Provider {
	case config.ProviderAnthropic, "":
		c = NewAnthropic(gen.APIKey, gen.BaseURL, httpClient)
	case config.ProviderOpenAI:
		c = NewOpenAI(gen.APIKey, gen.BaseURL, httpClient)
	default:
		return nil, fmt.Errorf("unknown provider: %s", gen.Provider)
	}
	if br.Enabled {
		c = NewBreaker(c, br, logger)
	}
	return c, nil
}

package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/tracing"
)

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		DatabaseConfig: &DatabaseConfig{},
		GoogleOAuth:    &GoogleOAuthConfig{},
		MicrosoftOAuth: &MicrosoftOAuthConfig{},
		Sync:           &SyncConfig{},
		Crypto:         &CryptoConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, err
	}

	// Callback URIs default under the public base URL.
	if config.GoogleOAuth.RedirectURI == "" {
		config.GoogleOAuth.RedirectURI = config.AppConfig.BaseURL + "/api/v1/oauth/gmail/callback"
	}
	if config.MicrosoftOAuth.RedirectURI == "" {
		config.MicrosoftOAuth.RedirectURI = config.AppConfig.BaseURL + "/api/v1/oauth/outlook/callback"
	}

	return config, nil
}

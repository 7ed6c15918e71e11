package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Environment variables holding credentials.
const (
	EnvJiraToken     = "JIRA_API_TOKEN"
	EnvTempoToken    = "TEMPO_API_TOKEN"
	EnvTelegramToken = "TELEGRAM_BOT_TOKEN"
)

// Secrets are credentials that never live in the YAML document.
type Secrets struct {
	JiraAPIToken     string
	TempoAPIToken    string
	TelegramBotToken string
}

// LoadSecrets reads credentials from the environment after loading an
// optional .env file from dir. Variables already set in the environment win.
func LoadSecrets(dir string) Secrets {
	envFile := filepath.Join(dir, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load env file", "path", envFile, "error", err)
	}
	return Secrets{
		JiraAPIToken:     os.Getenv(EnvJiraToken),
		TempoAPIToken:    os.Getenv(EnvTempoToken),
		TelegramBotToken: os.Getenv(EnvTelegramToken),
	}
}

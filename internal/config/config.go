package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/NarekCodes/global-chat/internal/engine"
	"github.com/NarekCodes/global-chat/internal/room"
)

type Config struct {
	Addr string
	Room room.Config
}

// Load reads configuration from the environment, with an optional .env file.
// Every key has a default so a bare process still runs.
func Load() Config {
	_ = godotenv.Load() // missing .env is fine

	return Config{
		Addr: getenv("ADDR", ":8080"),
		Room: room.Config{
			HistoryLimit: getenvInt("HISTORY_LIMIT", 200),
			Rules: engine.Rules{
				MinPlayers: getenvInt("MIN_PLAYERS", 5),
				MaxPlayers: getenvInt("MAX_PLAYERS", 20),
				DaySeconds: getenvInt("DAY_SECONDS", 60),
			},
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

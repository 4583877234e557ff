package main

import (
	"flag"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

func main() {
	force := flag.Int("force", -1, "mark this migration version as clean without running it")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "dev")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "migrate").Logger()

	version, err := db.Migrate(cfg.PostgresDSN, *force)
	if err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	if *force >= 0 {
		logger.Info().Uint("version", version).Msg("forced migration version")
		return
	}
	logger.Info().Uint("version", version).Msg("migrations applied")
}

package main

import (
	"flag"
	"os"

	"github.com/RoyceAzure/lab/storefront/internal/config"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/logger"
	"github.com/rs/zerolog/log"
)

// migrate -direction up|down
func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	configFile := flag.String("config", "./.env", "config file path")
	flag.Parse()

	cf, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Setup(cf.Env, cf.LogLevel)

	url := cf.MigrationURL
	if url == "" {
		url = db.MigrateURL(cf.DbName, cf.DbHost, cf.DbPort, cf.DbUser, cf.DbPas)
	}

	switch *direction {
	case "up":
		err = db.RunMigrations(url)
	case "down":
		err = db.RollbackMigrations(url)
	default:
		log.Error().Str("direction", *direction).Msg("unknown direction")
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("direction", *direction).Msg("migration failed")
	}
	log.Info().Str("direction", *direction).Msg("migration completed")
}

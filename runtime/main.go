package main

import (
	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/medigo-health/medigo_api/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.PostgresService{},
		&services.RedisService{},
		&services.JWTService{},
		&services.FingerprintService{},
		&services.EmailService{},
		&services.AuditService{},
		&services.SessionService{},
		&services.RateLimitService{},
		&services.AuthMiddleware{},
		&services.AuthService{},
		&services.CatalogService{},
		&services.MonitoringService{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err)
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err)
		return
	}
}

// Package app wires configuration, storage and services into the jobs and
// handlers shared by the server and the operator CLI.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/familycare/checkin-dispatch/internal/config"
	"github.com/familycare/checkin-dispatch/internal/database"
	"github.com/familycare/checkin-dispatch/internal/jobs"
	"github.com/familycare/checkin-dispatch/internal/push"
	"github.com/familycare/checkin-dispatch/internal/redis"
	"github.com/familycare/checkin-dispatch/internal/repository"
	"github.com/familycare/checkin-dispatch/internal/service"
	"github.com/familycare/checkin-dispatch/internal/sse"
	"github.com/familycare/checkin-dispatch/internal/telephony"
)

type App struct {
	Config     *config.Config
	DB         *database.DB
	Redis      *redis.Client
	Broker     *sse.Broker
	Heartbeats repository.HeartbeatRepository
	Sessions   *service.SessionManager
	Dispatch   *jobs.DispatchJob
	Reaper     *jobs.ReaperJob
}

// New connects to postgres and redis, applies the schema and builds every
// component. Callers must Close the returned App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info().Msg("redis connected")

	a := &App{
		Config: cfg,
		DB:     db,
		Redis:  redisClient,
		Broker: sse.NewBroker(redisClient),
	}
	if err := a.build(); err != nil {
		a.Close()
		return nil, fmt.Errorf("build components: %w", err)
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.Config

	scheduleRepo := repository.NewScheduleRepository(a.DB.DB)
	sessionRepo := repository.NewCallSessionRepository(a.DB.DB)
	callLogRepo := repository.NewCallLogRepository(a.DB.DB)
	trackingRepo := repository.NewDailyCallTrackingRepository(a.DB.DB)
	pairingRepo := repository.NewDevicePairingRepository(a.DB.DB)
	pushTokenRepo := repository.NewPushTokenRepository(a.DB.DB)
	mappingRepo := repository.NewBatchCallMappingRepository(a.DB.DB)
	alertRepo := repository.NewAlertRepository(a.DB.DB)
	a.Heartbeats = repository.NewHeartbeatRepository(a.DB.DB)

	pushCfg := push.ClientConfig{
		GatewayHost:    cfg.PushGatewayHost,
		GatewayAPIPath: cfg.PushGatewayAPIPath,
		GatewayToken:   cfg.PushGatewayToken,
		VoIPTopic:      cfg.APNsVoIPTopic,
	}
	if cfg.VoIPConfigured() {
		voip, err := push.NewAPNsClient(cfg.APNsKeyPath, cfg.APNsKeyID, cfg.APNsTeamID, cfg.APNsProduction)
		if err != nil {
			return err
		}
		pushCfg.VoIP = voip
	}
	pushClient := push.NewClient(pushCfg)

	tokens := service.NewTokenResolver(pairingRepo, pushTokenRepo)
	dispatcher := service.NewDispatcher(pushClient, tokens, pushTokenRepo)
	resolver := service.NewScheduleResolver(scheduleRepo, cfg.DispatchWindow())
	a.Sessions = service.NewSessionManager(a.DB, sessionRepo, callLogRepo, tokens, dispatcher, a.Broker)

	var batches jobs.BatchDispatcher
	if cfg.TelephonyAPIURL != "" {
		provider := telephony.NewClient(cfg.TelephonyAPIURL, cfg.TelephonyAPIKey, config.TelephonyRequestTimeout)
		batches = service.NewBatchCorrelator(a.DB, provider, mappingRepo, callLogRepo, trackingRepo, service.BatchConfig{
			AgentID:       cfg.TelephonyAgentID,
			FromNumber:    cfg.TelephonyFromNumber,
			DefaultRegion: cfg.DefaultPhoneRegion,
		})
	} else {
		log.Warn().Msg("TELEPHONY_API_URL is not set: telephone check-ins are disabled")
	}

	a.Dispatch = jobs.NewDispatchJob(
		resolver, a.Sessions, tokens, dispatcher, batches,
		trackingRepo, a.Heartbeats, cfg.DispatchConcurrency,
	)
	a.Reaper = jobs.NewReaperJob(sessionRepo, alertRepo, pairingRepo, a.Heartbeats, a.Sessions)
	return nil
}

func (a *App) Close() {
	a.Broker.Close()
	if err := a.Redis.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close redis")
	}
	if err := a.DB.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}

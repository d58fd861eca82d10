package service

import (
	"log/slog"

	"github.com/seatsync/seatsync-api/internal/config"
	"github.com/seatsync/seatsync-api/internal/models"
	"github.com/seatsync/seatsync-api/internal/provider"
	"github.com/seatsync/seatsync-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Flags         *FeatureFlagService
	HighWaterMark *HighWaterMarkService
	SeatChange    *SeatChangeService
	Resolver      *StrategyResolver
}

// NewServices creates all service instances. gateway may be nil when no
// billing provider is configured; provider-facing operations then degrade
// per service.
func NewServices(cfg *config.Config, repos *repository.Repositories, gateway provider.SubscriptionGateway, logger *slog.Logger) *Services {
	flagDefaults := map[string]bool{
		models.FlagHWMSeatBilling:   cfg.HWMSeatBillingDefault,
		models.FlagMonthlyProration: cfg.MonthlyProrationDefault,
	}

	flagsSvc := NewFeatureFlagService(repos.FeatureFlag, flagDefaults, logger)
	hwmSvc := NewHighWaterMarkService(repos, flagsSvc, gateway, logger)
	seatChangeSvc := NewSeatChangeService(repos, hwmSvc, logger)
	resolver := NewStrategyResolver(repos, seatChangeSvc, hwmSvc, gateway, logger)

	return &Services{
		Flags:         flagsSvc,
		HighWaterMark: hwmSvc,
		SeatChange:    seatChangeSvc,
		Resolver:      resolver,
	}
}

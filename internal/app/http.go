package app

import (
	"context"

	"github.com/yungbote/provenance-updater/internal/config"
	httpx "github.com/yungbote/provenance-updater/internal/http"
	httpH "github.com/yungbote/provenance-updater/internal/http/handlers"
	"github.com/yungbote/provenance-updater/internal/ledger"
	"github.com/yungbote/provenance-updater/internal/observability"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Failures *httpH.FailureHandler
}

func wireHandlers(log *logger.Logger, checks map[string]httpH.Check, failures ledger.Ledger) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(checks),
		Failures: httpH.NewFailureHandler(failures, log),
	}
}

func wireServer(cfg *config.Config, log *logger.Logger, metrics *observability.Metrics, handlers Handlers) *httpx.Server {
	serviceName := ""
	if cfg.OTel.Enabled {
		serviceName = cfg.OTel.ServiceName
	}
	return httpx.NewServer(cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout, httpx.RouterConfig{
		ServiceName:    serviceName,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		Log:            log,
		Metrics:        metrics,
		HealthHandler:  handlers.Health,
		FailureHandler: handlers.Failures,
	})
}

func pingCheck(ping func() error) httpH.Check {
	return func(context.Context) error { return ping() }
}

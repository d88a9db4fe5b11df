package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/rentflow/internal/config"
	"github.com/smallbiznis/rentflow/internal/contract"
	contractdomain "github.com/smallbiznis/rentflow/internal/contract/domain"
	"github.com/smallbiznis/rentflow/internal/invoice"
	invoicedomain "github.com/smallbiznis/rentflow/internal/invoice/domain"
	"github.com/smallbiznis/rentflow/internal/invoicing"
	invoicingdomain "github.com/smallbiznis/rentflow/internal/invoicing/domain"
	"github.com/smallbiznis/rentflow/internal/meterreading"
	meterreadingdomain "github.com/smallbiznis/rentflow/internal/meterreading/domain"
	"github.com/smallbiznis/rentflow/internal/observability"
	obslogger "github.com/smallbiznis/rentflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/rentflow/internal/observability/metrics"
	obstracing "github.com/smallbiznis/rentflow/internal/observability/tracing"
	"github.com/smallbiznis/rentflow/internal/ratelimit"
	"github.com/smallbiznis/rentflow/internal/setting"
	settingdomain "github.com/smallbiznis/rentflow/internal/setting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	contract.Module,
	meterreading.Module,
	setting.Module,
	invoicing.Module,
	invoice.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	contractSvc  contractdomain.Service
	readingSvc   meterreadingdomain.Service
	settingSvc   settingdomain.Service
	invoicingSvc invoicingdomain.Service
	invoiceSvc   invoicedomain.Service
	guard        *ratelimit.InvoiceGuard
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	ContractSvc  contractdomain.Service
	ReadingSvc   meterreadingdomain.Service
	SettingSvc   settingdomain.Service
	InvoicingSvc invoicingdomain.Service
	InvoiceSvc   invoicedomain.Service
	Guard        *ratelimit.InvoiceGuard `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		contractSvc:  p.ContractSvc,
		readingSvc:   p.ReadingSvc,
		settingSvc:   p.SettingSvc,
		invoicingSvc: p.InvoicingSvc,
		invoiceSvc:   p.InvoiceSvc,
		guard:        p.Guard,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.OrgContext())

	// -------- Contracts --------
	api.POST("/contracts", s.CreateContract)
	api.GET("/contracts", s.ListContracts)
	api.GET("/contracts/:id", s.GetContractByID)
	api.POST("/contracts/:id/terminate", s.TerminateContract)

	// -------- Meter readings --------
	api.POST("/meter-readings", s.RecordMeterReading)
	api.GET("/meter-readings", s.ListMeterReadings)
	api.GET("/rooms/:room_id/services/:service_id/meter-readings/latest", s.GetLatestMeterReading)

	// -------- Invoices --------
	api.POST("/invoices/preview", s.PreviewRateLimit(), s.PreviewInvoice)
	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PUT("/invoices/:id", s.UpdateInvoice)
	api.POST("/invoices/:id/payments", s.RecordInvoicePayment)

	// -------- Settings --------
	api.GET("/settings", s.ListSettings)
	api.GET("/settings/:key", s.GetSetting)
	api.PUT("/settings/:key", s.SetSetting)
	api.DELETE("/settings/:key", s.DeleteSetting)
}

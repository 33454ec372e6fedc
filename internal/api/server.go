package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/shardgate-project/shardgate/internal/config"
	"github.com/shardgate-project/shardgate/internal/db"
	"github.com/shardgate-project/shardgate/internal/events"
	"github.com/shardgate-project/shardgate/internal/huffman"
	intnet "github.com/shardgate-project/shardgate/internal/network"
	"github.com/shardgate-project/shardgate/internal/util"
)

// Deps are the runtime components the API reports on and controls.
type Deps struct {
	Config   *config.Config
	EventBus *events.EventBus
	Registry *intnet.ConnectionRegistry
	Store    *db.Store      // nil when storage is disabled
	Cache    *huffman.Cache // nil when the compression cache is disabled
	Gatherer prometheus.Gatherer
	Version  string
}

// Server is the operator REST API of the login server.
type Server struct {
	cfg       *config.Config
	eventBus  *events.EventBus
	registry  *intnet.ConnectionRegistry
	store     *db.Store
	cache     *huffman.Cache
	gatherer  prometheus.Gatherer
	version   string
	startedAt time.Time

	stream     *EventStream
	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(deps Deps) *Server {
	if deps.Config.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:       deps.Config,
		eventBus:  deps.EventBus,
		registry:  deps.Registry,
		store:     deps.Store,
		cache:     deps.Cache,
		gatherer:  gatherer,
		version:   deps.Version,
		startedAt: time.Now(),
		stream:    NewEventStream(deps.EventBus),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the API listener and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	app := s.cfg.GetApplicationData()
	addr := app.API.ListenAddr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if app.Security.TLSEnabled {
		cert, err := loadOrCreateCert(app.Security, app.API.Host)
		if err != nil {
			return err
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}

	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	s.stream.Start()
	defer s.stream.Stop()

	log.Info().Str("addr", addr).Bool("tls", app.Security.TLSEnabled).Msg("REST API server starting")

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	})
	defer stop()

	if s.httpServer.TLSConfig != nil {
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// loadOrCreateCert loads the configured TLS pair, generating a self-signed
// one first when neither file exists.
func loadOrCreateCert(sec config.SecurityConfig, host string) (tls.Certificate, error) {
	_, certErr := os.Stat(sec.TLSCertFile)
	_, keyErr := os.Stat(sec.TLSKeyFile)
	if os.IsNotExist(certErr) && os.IsNotExist(keyErr) {
		log.Warn().Str("cert", sec.TLSCertFile).Msg("TLS certificate not found, generating self-signed certificate")
		if err := util.GenerateSelfSignedCert(sec.TLSCertFile, sec.TLSKeyFile, host); err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to generate TLS certificate: %w", err)
		}
	}
	cert, err := tls.LoadX509KeyPair(sec.TLSCertFile, sec.TLSKeyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	return cert, nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	sec := s.cfg.GetApplicationData().Security
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := sec.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // must stay false while AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	router.Use(IPWhitelist(sec.IPWhitelist))
	router.Use(NewRateLimiter(sec.RateLimitRPS).Middleware())

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/server_info", s.handleServerInfo)
		public.GET("/shard", s.handleShard)
	}

	protected := router.Group("/api")
	protected.Use(TokenAuth(s.cfg))

	monitor := protected.Group("/monitor")
	{
		monitor.GET("/connections", s.handleConnections)
		monitor.GET("/logins", s.handleLogins)
		monitor.GET("/stats", s.handleStats)
		monitor.GET("/log_entries", s.handleLogEntries)
		monitor.GET("/events", s.stream.Handle)
	}

	control := protected.Group("/control")
	{
		control.POST("/disconnect/:id", s.handleDisconnect)
		control.POST("/compress", s.handleCompress)
	}

	configure := protected.Group("/configure")
	{
		configure.GET("/config", s.handleGetConfig)
		configure.POST("/shard_field", s.handleSetShardField)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Shardgate API is running"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

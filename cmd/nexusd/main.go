package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zquestz/nexus/adapter/inbound/session"
	"github.com/zquestz/nexus/adapter/inbound/tcp"
	"github.com/zquestz/nexus/adapter/inbound/websocket"
	"github.com/zquestz/nexus/adapter/outbound/crypto"
	"github.com/zquestz/nexus/adapter/outbound/logging"
	"github.com/zquestz/nexus/adapter/outbound/presence"
	"github.com/zquestz/nexus/adapter/outbound/storage/sqlite"
	"github.com/zquestz/nexus/adapter/outbound/upnp"
	"github.com/zquestz/nexus/config"
	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/service"
	"github.com/zquestz/nexus/i18n"
)

const shutdownTimeout = 10 * time.Second

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var binds stringList
	flag.Var(&binds, "bind", "bind address (repeatable; IPv4 or IPv6)")
	port := flag.Int("port", 0, "listen port (default 7500)")
	database := flag.String("database", "", "database file path")
	configPath := flag.String("config", "", "configuration file path")
	locales := flag.String("locales", "", "locale catalog override directory")
	useUPnP := flag.Bool("upnp", false, "request a UPnP port mapping")
	debug := flag.Bool("debug", false, "enable verbose logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	generateConfig := flag.Bool("generate-config", false, "write a default config file and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("nexusd " + model.ServerVersion)
		return
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = "nexus.yaml"
	}
	if *generateConfig {
		if err := config.SaveConfig(config.DefaultConfig(), cfgFile); err != nil {
			fmt.Fprintln(os.Stderr, "error writing config:", err)
			os.Exit(1)
		}
		fmt.Println("wrote", cfgFile)
		return
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error loading config:", err)
		os.Exit(1)
	}
	if len(binds) > 0 {
		cfg.Server.Binds = binds
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *database != "" {
		cfg.Server.DatabasePath = *database
	}
	if *locales != "" {
		cfg.Locales.OverrideDir = *locales
	}
	if *useUPnP {
		cfg.Server.UPnP = true
	}
	if *debug {
		cfg.General.LogLevel = "debug"
	}

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	logger := logging.New(cfg.General.LogLevel)
	defer logger.Shutdown()

	logger.Info("Starting nexusd", "version", model.ServerVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		logger.Error("Failed to create data directory", "dir", cfg.General.DataDir, "error", err)
		return 1
	}

	db, err := sqlite.Open(ctx, cfg.DatabasePath())
	if err != nil {
		logger.Error("Failed to open database", "path", cfg.DatabasePath(), "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("Database ready", "path", cfg.DatabasePath())

	formatter, err := i18n.NewFormatter(logger)
	if err != nil {
		logger.Error("Failed to load locale catalogs", "error", err)
		return 1
	}
	if dir := cfg.Locales.OverrideDir; dir != "" {
		if cfg.Locales.Watch {
			watcher, err := formatter.Watch(dir)
			if err != nil {
				logger.Warn("Locale override directory unavailable", "dir", dir, "error", err)
			} else {
				defer watcher.Close()
			}
		} else if err := formatter.LoadOverrides(dir); err != nil {
			logger.Warn("Failed to load locale overrides", "dir", dir, "error", err)
		}
	}
	logger.Info("Locales loaded", "locales", strings.Join(formatter.Locales(), ","))

	users := sqlite.NewUserRepository(db)
	configRepo := sqlite.NewConfigRepository(db)
	chatState := sqlite.NewChatStateRepository(db)
	registry := presence.NewRegistry()
	hasher := crypto.NewArgon2Hasher(crypto.DefaultParams())

	router := service.NewEventRouter(logger)
	authSvc := service.NewAuthService(users, hasher, logger)
	serverSvc := service.NewServerService(configRepo, chatState, router, logger)
	chatSvc := service.NewChatService(chatState, configRepo, registry, router, logger)
	userSvc := service.NewUserAdminService(users, hasher, registry, router, serverSvc, formatter, logger)

	svc := session.Services{
		Auth:      authSvc,
		Chat:      chatSvc,
		Users:     userSvc,
		Server:    serverSvc,
		Router:    router,
		Presence:  registry,
		Config:    configRepo,
		Localizer: formatter,
		Logger:    logger,
	}
	timeouts := session.Timeouts{
		Handshake: cfg.Server.HandshakeTimeout,
		Login:     cfg.Server.LoginTimeout,
	}

	certPath, keyPath, err := config.EnsureTLSCertificates(cfg, logger)
	if err != nil {
		logger.Error("Failed to prepare TLS certificates", "error", err)
		return 1
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		logger.Error("Failed to load TLS key pair", "error", err)
		return 1
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	tcpSrv := tcp.NewServer(cfg.Server.Binds, cfg.Server.Port, tlsConfig,
		svc, timeouts, cfg.Server.OutboundQueueSize)
	if err := tcpSrv.Start(ctx); err != nil {
		logger.Error("Failed to start listener", "error", err)
		return 1
	}

	var wsSrv *websocket.Server
	if cfg.WebSocket.Enabled {
		wsSrv = websocket.NewServer(cfg.WebSocket.Address, cfg.WebSocket.Port,
			svc, timeouts, cfg.Server.OutboundQueueSize)
		if err := wsSrv.Start(ctx); err != nil {
			logger.Error("Failed to start WebSocket bridge", "error", err)
			return 1
		}
	}

	var mapper *upnp.Mapper
	if cfg.Server.UPnP {
		mapCtx, mapCancel := context.WithTimeout(ctx, 10*time.Second)
		mapper, err = upnp.Map(mapCtx, uint16(cfg.Server.Port), logger)
		mapCancel()
		if err != nil {
			// not fatal, the server still serves the LAN
			logger.Warn("UPnP port mapping failed", "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	tcpSrv.Stop(shutdownCtx)
	if wsSrv != nil {
		wsSrv.Stop(shutdownCtx)
	}
	if mapper != nil {
		mapper.Unmap()
	}
	cancel()

	logger.Info("Shutdown complete")
	return 0
}

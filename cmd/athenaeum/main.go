package main

import (
	"flag"
	"os"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/osezele/athenaeum/config"
	"github.com/osezele/athenaeum/data"
	"github.com/osezele/athenaeum/handler"
	"github.com/osezele/athenaeum/internal/jsonlog"
	"github.com/osezele/athenaeum/repository"
	"github.com/osezele/athenaeum/repository/postgres"
	"github.com/osezele/athenaeum/service"
)

// app defines the application's layers and shared resources.
type app struct {
	config  config.Config
	repo    repository.Repository
	service service.Service
	handler *handler.Handler
}

func main() {
	var (
		configPath string
		port       int
		env        string
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config file (optional, environment used otherwise)")
	flag.IntVar(&port, "port", 0, "API server port (overrides config)")
	flag.StringVar(&env, "env", "", "Environment (development|staging|production, overrides config)")
	flag.Parse()

	logger := jsonlog.New(os.Stdout, jsonlog.LevelInfo)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.PrintFatal(err, nil)
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if env != "" {
		cfg.Server.Env = env
	}

	db, err := postgres.OpenDBConn(cfg)
	if err != nil {
		logger.PrintFatal(err, nil)
	}
	defer db.Close()
	logger.PrintInfo("database connection pool established", nil)

	// Other shared resources: waitgroup and in-memory cache
	var wg sync.WaitGroup
	cache := ttlcache.New(ttlcache.WithTTL[string, *data.User](30 * time.Minute))
	go cache.Start()

	// Application layers
	repo := repository.New(db)
	service := service.New(cfg, &wg, logger, repo)
	handler := handler.New(cfg, logger, cache, service)

	app := &app{
		config:  cfg,
		repo:    repo,
		service: service,
		handler: handler,
	}

	err = app.serve(&wg, logger)
	if err != nil {
		logger.PrintFatal(err, nil)
	}
}

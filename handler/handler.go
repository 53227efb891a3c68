package handler

import (
	"github.com/jellydator/ttlcache/v3"
	"github.com/osezele/athenaeum/config"
	"github.com/osezele/athenaeum/data"
	"github.com/osezele/athenaeum/internal/jsonlog"
	"github.com/osezele/athenaeum/service"
)

// Handler defines the handler layer. The cache holds authenticated users
// keyed by token plaintext, saving a database lookup on every request.
type Handler struct {
	config  config.Config
	logger  *jsonlog.Logger
	cache   *ttlcache.Cache[string, *data.User]
	service service.Service
}

// New creates a new instance of Handler.
func New(cfg config.Config, logger *jsonlog.Logger, cache *ttlcache.Cache[string, *data.User], service service.Service) *Handler {
	return &Handler{
		config:  cfg,
		logger:  logger,
		cache:   cache,
		service: service,
	}
}

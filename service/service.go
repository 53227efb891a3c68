package service

import (
	"sync"

	"github.com/osezele/athenaeum/config"
	"github.com/osezele/athenaeum/internal/jsonlog"
	"github.com/osezele/athenaeum/repository"
)

type Service interface {
	books
	circulation
	users
	tokens
	failedValidation(map[string]string) error
}

// service defines the service layer.
type service struct {
	config config.Config
	wg     *sync.WaitGroup
	logger *jsonlog.Logger
	repo   repository.Repository
}

// New creates a new instance of Service.
func New(cfg config.Config, wg *sync.WaitGroup, logger *jsonlog.Logger, repo repository.Repository) *service {
	return &service{
		config: cfg,
		wg:     wg,
		logger: logger,
		repo:   repo,
	}
}

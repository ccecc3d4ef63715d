package app

import (
	"net/http"

	"trustkit/internal/bootstrap"
	"trustkit/internal/domain"
	"trustkit/internal/orchestrator"
	"trustkit/internal/transport"
	"trustkit/internal/truststore"
	"trustkit/internal/verification"
)

// Wire bundles the constructed dependency graph for the CLI. Verifier is the
// concrete service so callers can also reach the sweeper.
type Wire struct {
	Verifier  *orchestrator.Service
	Trust     domain.TrustStore
	Bootstrap domain.Bootstrapper
	Transport domain.Transport
	Config    Config
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	log := cfg.Logger
	if log == nil {
		log = defaultLogger()
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	tp := transport.NewHTTP(cfg.GatewayURL, httpClient)
	trust := truststore.NewFileStore(cfg.Home)
	tracker := verification.NewTracker(cfg.MaxLifetime, nil)
	boot := bootstrap.New(tp, cfg.BootstrapTTL, nil, log)
	verifier := orchestrator.New(tracker, trust, boot, tp, nil, log)

	return &Wire{
		Verifier:  verifier,
		Trust:     trust,
		Bootstrap: boot,
		Transport: tp,
		Config:    cfg,
	}, nil
}

package msafe

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// Issuer is the expected issuer of bearer tokens.
	Issuer string
	// AssetID is the asset wallets hold and deposits are accepted in.
	AssetID string
	// PollInterval is how often incoming snapshots are checked for deposits.
	PollInterval time.Duration
}

// EventSource lists the events emitted for a wallet, oldest first.
type EventSource interface {
	ListEvents(ctx context.Context, wallet uuid.UUID) ([]*Event, error)
}

type Server struct {
	store     *BadgerStore
	registry  *Registry
	events    EventSource
	resolve   UserResolver
	snapshots SnapshotSource
	cfg       Config
}

// NewServer wires the HTTP API and the deposit loop around registry.
// snapshots may be nil, in which case no deposits are picked up. Wallets of
// registry must persist through store, so a credit and its deposit markers
// share one batch.
func NewServer(
	store *BadgerStore,
	registry *Registry,
	events EventSource,
	resolve UserResolver,
	snapshots SnapshotSource,
	cfg Config,
) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	return &Server{
		store:     store,
		registry:  registry,
		events:    events,
		resolve:   resolve,
		snapshots: snapshots,
		cfg:       cfg,
	}
}

func (s *Server) Run(ctx context.Context) error {
	var g errgroup.Group

	if s.snapshots != nil {
		g.Go(func() error {
			return s.LoopDeposits(ctx)
		})
	}

	return g.Wait()
}

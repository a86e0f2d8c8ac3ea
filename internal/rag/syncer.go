package rag

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
)

// SyncTarget is the index operation the Syncer drives.
type SyncTarget interface {
	Sync(ctx context.Context, products []domain.Product) (*Index, error)
}

// Syncer rebuilds the vector index in the background whenever the product
// catalog changes. Product mutations call Trigger, which never blocks and
// never fails the triggering request: rebuild errors go to the structured
// log, not to the CRUD caller.
//
// Triggers are coalesced — a rebuild already pending absorbs further ones,
// since every rebuild reads the full current catalog anyway.
type Syncer struct {
	products ProductSource
	target   SyncTarget
	log      zerolog.Logger
	timeout  time.Duration

	trigger chan struct{}
	quit    chan struct{}
	done    chan struct{}
	started atomic.Bool
	once    sync.Once
}

// NewSyncer constructs a stopped Syncer. timeout bounds one rebuild attempt;
// values <= 0 default to 2 minutes.
func NewSyncer(products ProductSource, target SyncTarget, timeout time.Duration, log zerolog.Logger) *Syncer {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Syncer{
		products: products,
		target:   target,
		log:      log,
		timeout:  timeout,
		trigger:  make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine. Call Close to stop it. Repeated calls
// are no-ops.
func (s *Syncer) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.run()
	}
}

// Trigger requests a background rebuild. It returns immediately; when a
// rebuild is already pending the request is absorbed.
func (s *Syncer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Close stops the worker and waits for an in-flight rebuild to finish. It is
// safe to call more than once, and returns immediately on a Syncer that was
// never started.
func (s *Syncer) Close() {
	s.once.Do(func() {
		close(s.quit)
		if s.started.Load() {
			<-s.done
		}
	})
}

func (s *Syncer) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.trigger:
			s.syncOnce()
		}
	}
}

// syncOnce performs one full rebuild. Failures are logged and swallowed; an
// empty catalog is logged at debug level only, since there is simply nothing
// to index yet.
func (s *Syncer) syncOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	products, err := s.products.ListAllProducts(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("index sync: loading catalog failed")
		return
	}

	start := time.Now()
	ix, err := s.target.Sync(ctx, products)
	if err != nil {
		if errors.Is(err, ErrEmptyCorpus) {
			s.log.Debug().Msg("index sync skipped: catalog is empty")
			return
		}
		s.log.Error().Err(err).Msg("index sync failed")
		return
	}
	s.log.Info().
		Int("units", ix.Len()).
		Dur("took", time.Since(start)).
		Msg("index sync completed")
}

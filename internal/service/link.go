// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcel-gle/gb-qr-tracker/internal/cache"
	"github.com/marcel-gle/gb-qr-tracker/internal/metrics"
	"github.com/marcel-gle/gb-qr-tracker/internal/model"
	"github.com/marcel-gle/gb-qr-tracker/internal/store"
)

// Service errors.
var (
	ErrLinkNotFound       = errors.New("link not found")
	ErrLinkInactive       = errors.New("link is inactive")
	ErrDestinationInvalid = errors.New("destination is invalid or missing")
)

// Status is the outcome of resolving an identifier.
type Status int

const (
	StatusMissing Status = iota
	StatusInactive
	StatusDestinationInvalid
	StatusActive
)

func (s Status) String() string {
	switch s {
	case StatusMissing:
		return "missing"
	case StatusInactive:
		return "inactive"
	case StatusDestinationInvalid:
		return "destination_invalid"
	case StatusActive:
		return "active"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Resolution is the redirect decision for one identifier. Link is set for
// every status except StatusMissing.
type Resolution struct {
	Status Status
	Link   *model.Link
}

// Err maps the status to its sentinel error, nil when active.
func (r Resolution) Err() error {
	switch r.Status {
	case StatusActive:
		return nil
	case StatusInactive:
		return ErrLinkInactive
	case StatusDestinationInvalid:
		return ErrDestinationInvalid
	default:
		return ErrLinkNotFound
	}
}

// LinkCache is the read-through snapshot cache in front of the store.
type LinkCache interface {
	GetLink(ctx context.Context, id string) (*model.CachedLink, error)
	SetLink(ctx context.Context, link *model.Link) error
	IsNegativelyCached(ctx context.Context, id string) (bool, error)
	SetNegativeCache(ctx context.Context, id string) error
}

// LinkService resolves identifiers to redirect decisions.
type LinkService struct {
	links   store.LinkReader
	cache   LinkCache
	logger  *slog.Logger
	metrics metrics.Recorder
}

// LinkServiceOption configures a LinkService.
type LinkServiceOption func(*LinkService)

// WithLinkCache puts a snapshot cache in front of the store.
func WithLinkCache(c LinkCache) LinkServiceOption {
	return func(s *LinkService) {
		s.cache = c
	}
}

// NewLinkService creates a new LinkService.
func NewLinkService(links store.LinkReader, logger *slog.Logger, recorder metrics.Recorder, opts ...LinkServiceOption) *LinkService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &LinkService{
		links:   links,
		logger:  logger.With("component", "service.link"),
		metrics: recorder,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve looks up id and classifies it. A store read failure is returned
// as an error and never reported as missing. Cache failures only cost the
// cache.
func (s *LinkService) Resolve(ctx context.Context, id string) (Resolution, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveRedirectDuration(time.Since(start))
	}()

	if s.cache != nil {
		cached, err := s.cache.GetLink(ctx, id)
		switch {
		case err == nil:
			s.metrics.IncRedirectCacheHit()
			return classify(cached.ToLink(id)), nil
		case errors.Is(err, cache.ErrCacheMiss):
			s.metrics.IncRedirectCacheMiss()
			if neg, _ := s.cache.IsNegativelyCached(ctx, id); neg {
				return Resolution{Status: StatusMissing}, nil
			}
		default:
			s.logger.Warn("link_cache_read_failed", "link_id", id, "error", err)
		}
	}

	link, err := s.links.GetLink(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.backfillNegative(ctx, id)
			return Resolution{Status: StatusMissing}, nil
		}
		return Resolution{}, fmt.Errorf("read link %q: %w", id, err)
	}

	if s.cache != nil {
		if err := s.cache.SetLink(ctx, link); err != nil {
			s.logger.Warn("link_cache_write_failed", "link_id", id, "error", err)
		}
	}

	return classify(link), nil
}

func (s *LinkService) backfillNegative(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetNegativeCache(ctx, id); err != nil {
		s.logger.Warn("link_cache_write_failed", "link_id", id, "error", err)
	}
}

func classify(link *model.Link) Resolution {
	switch {
	case !link.Active:
		return Resolution{Status: StatusInactive, Link: link}
	case !link.HasValidDestination():
		return Resolution{Status: StatusDestinationInvalid, Link: link}
	default:
		return Resolution{Status: StatusActive, Link: link}
	}
}

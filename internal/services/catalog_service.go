package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"brewbar/internal/domain"
	applog "brewbar/internal/log"
)

// FallbackWarning is shown when the menu comes from the built-in sample set.
const FallbackWarning = "Live menu is unavailable right now; showing our sample menu."

// ItemSource is the catalog backend. *repos.CatalogRepo satisfies it.
type ItemSource interface {
	ListAvailable(ctx context.Context) ([]domain.CatalogItem, error)
	ByID(ctx context.Context, id string) (domain.CatalogItem, error)
}

// Listing is a menu result. Warning is set when Items is the fallback set.
type Listing struct {
	Items   []domain.CatalogItem `json:"items"`
	Warning string               `json:"warning,omitempty"`
}

func (l Listing) Degraded() bool { return l.Warning != "" }

type CatalogService struct {
	Source   ItemSource
	Fallback []domain.CatalogItem
	// LoadTimeout bounds a shared menu load. It is detached from the
	// caller, so one client going away does not fail the others.
	LoadTimeout time.Duration

	cb  *gobreaker.CircuitBreaker[[]domain.CatalogItem]
	sfg singleflight.Group
}

func NewCatalogService(src ItemSource) *CatalogService {
	return &CatalogService{
		Source:      src,
		Fallback:    domain.SampleMenu(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)),
		LoadTimeout: 5 * time.Second,
		cb: gobreaker.NewCircuitBreaker[[]domain.CatalogItem](gobreaker.Settings{
			Name:        "catalog",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				applog.Info(nil, "catalog.breaker", map[string]any{"from": from.String(), "to": to.String()})
			},
		}),
	}
}

// ListAvailableItems never fails. Backend errors and an open breaker both
// yield the fallback menu with a warning.
func (s *CatalogService) ListAvailableItems(ctx context.Context) (Listing, error) {
	v, err, _ := s.sfg.Do("available", func() (any, error) {
		lctx := context.WithoutCancel(ctx)
		if s.LoadTimeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(lctx, s.LoadTimeout)
			defer cancel()
		}
		return s.cb.Execute(func() ([]domain.CatalogItem, error) {
			return s.Source.ListAvailable(lctx)
		})
	})
	if err != nil {
		applog.Warn(nil, "catalog.fallback", err, map[string]any{
			"breaker_open": errors.Is(err, gobreaker.ErrOpenState),
		})
		return Listing{Items: s.fallback(), Warning: FallbackWarning}, nil
	}
	items := v.([]domain.CatalogItem)
	out := make([]domain.CatalogItem, len(items))
	copy(out, items)
	return Listing{Items: out}, nil
}

// Lookup resolves an item by id. When the source is down the fallback set
// is consulted so a degraded menu stays orderable.
func (s *CatalogService) Lookup(ctx context.Context, id string) (domain.CatalogItem, error) {
	it, err := s.Source.ByID(ctx, id)
	if err == nil {
		return it, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.CatalogItem{}, domain.ErrItemNotFound
	}
	for _, f := range s.Fallback {
		if f.ID == id {
			applog.Warn(nil, "catalog.lookup.fallback", err, map[string]any{"item_id": id})
			return f, nil
		}
	}
	return domain.CatalogItem{}, err
}

// Filter narrows items by category and a case-insensitive match on name or
// description. Empty arguments match everything.
func Filter(items []domain.CatalogItem, category, query string) []domain.CatalogItem {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.CatalogItem, 0, len(items))
	for _, it := range items {
		if category != "" && category != "all" && string(it.Category) != category {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(it.Name), query) &&
			!strings.Contains(strings.ToLower(it.Description), query) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (s *CatalogService) fallback() []domain.CatalogItem {
	out := make([]domain.CatalogItem, 0, len(s.Fallback))
	for _, it := range s.Fallback {
		if it.Available {
			out = append(out, it)
		}
	}
	return out
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"carteira/internal/cache"
	"carteira/internal/core"
	"carteira/internal/ledger"
)

// DefaultRecentLimit is how many transactions the dashboard lists when the
// caller does not ask for a specific amount.
const DefaultRecentLimit = 5

type dashboardStore interface {
	ledger.ProfileStore
	ledger.TransactionStore
	ledger.LoanStore
}

// DashboardService computes the per-user dashboard figures. Results are cached
// per user and dropped by Invalidate whenever that user's data changes.
type DashboardService struct {
	store      dashboardStore
	summaries  *cache.LRUCache[core.DashboardSummary]
	breakdowns *cache.LRUCache[[]core.CategoryAmount]
}

func NewDashboardService(store dashboardStore, ttl time.Duration, maxEntries int) *DashboardService {
	return &DashboardService{
		store:      store,
		summaries:  cache.NewLRUCache[core.DashboardSummary](maxEntries, ttl),
		breakdowns: cache.NewLRUCache[[]core.CategoryAmount](maxEntries, ttl),
	}
}

// Caches exposes the underlying caches so a cache.Manager can sweep them.
func (s *DashboardService) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.summaries, s.breakdowns}
}

// Summary returns the balance figures for userID as seen at now. Month
// boundaries follow now's location.
func (s *DashboardService) Summary(ctx context.Context, userID string, now time.Time) (core.DashboardSummary, error) {
	key := fmt.Sprintf("%s:summary:%s:%s", userID, now.Format("2006-01"), now.Location())
	if summary, ok := s.summaries.Get(key); ok {
		return summary, nil
	}

	var (
		profile *core.FinancialProfile
		txs     []core.Transaction
		loans   []core.Loan
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.store.ProfileByUser(gctx, userID)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		profile = &p
		return nil
	})
	g.Go(func() (err error) {
		txs, err = s.loadTransactions(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		loans, err = s.loadLoans(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "Failed to load dashboard data", "user_id", userID, "error", err)
		return core.DashboardSummary{}, err
	}

	summary := core.Aggregate(profile, txs, loans, now)
	s.summaries.Set(key, summary)
	return summary, nil
}

// CategoryBreakdown groups the user's movements by category over a period.
// An empty kind covers income and expense together.
func (s *DashboardService) CategoryBreakdown(ctx context.Context, userID string, kind core.CategoryKind, period core.Period, now time.Time) ([]core.CategoryAmount, error) {
	if kind != "" && !kind.Valid() {
		return nil, core.ErrInvalidKind
	}
	key := fmt.Sprintf("%s:breakdown:%s:%s:%s:%s", userID, kind, period, now.Format("2006-01"), now.Location())
	if items, ok := s.breakdowns.Get(key); ok {
		return items, nil
	}

	var (
		txs   []core.Transaction
		loans []core.Loan
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		txs, err = s.loadTransactions(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		loans, err = s.loadLoans(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "Failed to load breakdown data", "user_id", userID, "error", err)
		return nil, err
	}

	items := core.Breakdown(txs, loans, kind, period, now)
	s.breakdowns.Set(key, items)
	return items, nil
}

// RecentTransactions lists the newest transactions, DefaultRecentLimit when
// limit is not positive.
func (s *DashboardService) RecentTransactions(ctx context.Context, userID string, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	txs, err := s.store.ListTransactions(ctx, ledger.TransactionFilter{UserID: userID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w", err)
	}
	return txs, nil
}

// Invalidate drops every cached figure for userID.
func (s *DashboardService) Invalidate(userID string) {
	prefix := userID + ":"
	n := s.summaries.DeletePrefix(prefix) + s.breakdowns.DeletePrefix(prefix)
	if n > 0 {
		slog.Debug("Dashboard cache invalidated", "user_id", userID, "entries", n)
	}
}

func (s *DashboardService) loadTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, ledger.TransactionFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return txs, nil
}

func (s *DashboardService) loadLoans(ctx context.Context, userID string) ([]core.Loan, error) {
	loans, err := s.store.ListLoans(ctx, ledger.LoanFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}
	return loans, nil
}

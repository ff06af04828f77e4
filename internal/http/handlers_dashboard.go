package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"carteira/internal/core"
	applog "carteira/internal/log"
	"carteira/internal/services"
)

type dashboardResponse struct {
	core.DashboardSummary
	MonthBalance decimal.Decimal `json:"monthBalance"`
	// Generated counts the recurring charges stored by this page load.
	Generated int `json:"generated"`
}

// handleDashboard brings recurring bills up to date before aggregating, so
// the figures include every charge due today.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := userID(ctx)
	now := s.now()

	var generated int
	if s.deps.Processor != nil {
		res, err := s.deps.Processor.ProcessUser(ctx, uid, now)
		if err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Recurring bills not processed on dashboard load",
				applog.FieldError, err)
		}
		generated = res.Generated
	}

	summary, err := s.deps.Dashboard.Summary(ctx, uid, now)
	if err != nil {
		writeError(w, r, err, applog.OpRead, "dashboard", "")
		return
	}

	resp := NewResponse().JSON(dashboardResponse{
		DashboardSummary: summary,
		MonthBalance:     summary.MonthBalance(),
		Generated:        generated,
	})
	if generated > 0 {
		resp.TriggerRefresh(EventTransactionsRefresh, EventRecurringRefresh)
	}
	resp.Write(w)
}

func (s *Server) handleDashboardCategories(w http.ResponseWriter, r *http.Request) {
	kind := core.CategoryKind(query(r, "kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, r, core.FieldErrors{"kind": core.ErrInvalidKind.Error()}, applog.OpRead, "dashboard", "")
		return
	}
	period, err := core.ParsePeriod(query(r, "period"))
	if err != nil {
		writeError(w, r, core.FieldErrors{"period": err.Error()}, applog.OpRead, "dashboard", "")
		return
	}

	amounts, err := s.deps.Dashboard.CategoryBreakdown(r.Context(), userID(r.Context()), kind, period, s.now())
	if err != nil {
		writeError(w, r, err, applog.OpRead, "dashboard", "")
		return
	}
	NewResponse().JSON(amounts).Write(w)
}

func (s *Server) handleDashboardRecent(w http.ResponseWriter, r *http.Request) {
	txs, err := s.deps.Dashboard.RecentTransactions(r.Context(), userID(r.Context()),
		queryInt(r, "limit", services.DefaultRecentLimit))
	if err != nil {
		writeError(w, r, err, applog.OpList, "transaction", "")
		return
	}
	NewResponse().JSON(txs).Write(w)
}

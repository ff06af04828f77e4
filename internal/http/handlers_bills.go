package http

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"carteira/internal/core"
	applog "carteira/internal/log"
	"carteira/internal/services"
)

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	q := services.LoanQuery{
		Status: core.LoanStatus(query(r, "status")),
		Search: query(r, "search"),
		From:   query(r, "from"),
		To:     query(r, "to"),
	}
	loans, err := s.deps.Loans.List(r.Context(), userID(r.Context()), q)
	if err != nil {
		writeError(w, r, err, applog.OpList, "loan", "")
		return
	}
	NewResponse().JSON(loans).Write(w)
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	in := services.LoanInput{
		Name:        p.Get("name"),
		Amount:      p.Get("amount"),
		CreatedDate: p.Get("createdDate"),
		PaymentDate: p.Get("paymentDate"),
	}
	loan, err := s.deps.Loans.Create(r.Context(), userID(r.Context()), in)
	if err != nil {
		writeError(w, r, err, applog.OpCreate, "loan", "")
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		JSON(loan).
		TriggerRefresh(EventLoansRefresh, EventDashboardRefresh, EventFormReset).
		TriggerSuccessNotification("Empréstimo criado com sucesso").
		Write(w)
}

func (s *Server) handleLoanStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	loan, err := s.deps.Loans.SetStatus(r.Context(), userID(r.Context()), id, core.LoanStatus(p.Get("status")))
	if err != nil {
		writeError(w, r, err, applog.OpUpdate, "loan", id)
		return
	}
	NewResponse().
		JSON(loan).
		TriggerRefresh(EventLoansRefresh, EventDashboardRefresh).
		TriggerSuccessNotification("Status atualizado").
		Write(w)
}

func (s *Server) handleDeleteLoan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Loans.Delete(r.Context(), userID(r.Context()), id); err != nil {
		writeError(w, r, err, applog.OpDelete, "loan", id)
		return
	}
	NewResponse().
		Status(http.StatusNoContent).
		TriggerRefresh(EventLoansRefresh, EventDashboardRefresh).
		TriggerSuccessNotification("Empréstimo excluído").
		Write(w)
}

func (s *Server) handlePendingLoans(w http.ResponseWriter, r *http.Request) {
	total, err := s.deps.Loans.PendingTotal(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err, applog.OpRead, "loan", "")
		return
	}
	NewResponse().JSON(struct {
		Total decimal.Decimal `json:"total"`
	}{total}).Write(w)
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	q := services.BillQuery{Status: query(r, "status"), Search: query(r, "search")}
	bills, err := s.deps.Bills.List(r.Context(), userID(r.Context()), q)
	if err != nil {
		writeError(w, r, err, applog.OpList, "recurring_bill", "")
		return
	}
	NewResponse().JSON(bills).Write(w)
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}

	fe := core.FieldErrors{}
	installments, err := p.Int("installmentCount")
	if err != nil {
		fe.Add("installmentCount", core.ErrInvalidInstallments)
	}
	closingDay, err := p.Int("closingDay")
	if err != nil {
		fe.Add("closingDay", core.ErrInvalidClosingDay)
	}
	subscription, err := p.Bool("isSubscription")
	if err != nil {
		fe.Set("isSubscription", MsgInvalidRequest)
	}
	if err := fe.Err(); err != nil {
		writeError(w, r, err, applog.OpCreate, "recurring_bill", "")
		return
	}

	in := services.BillInput{
		Name:             p.Get("name"),
		Description:      p.Get("description"),
		TotalAmount:      p.Get("totalAmount"),
		CategoryID:       p.Get("categoryId"),
		CategoryName:     p.Get("categoryName"),
		IsSubscription:   subscription,
		StartDate:        p.Get("startDate"),
		InstallmentCount: installments,
		ClosingDay:       closingDay,
	}
	bill, err := s.deps.Bills.Create(r.Context(), userID(r.Context()), in)
	if err != nil {
		writeError(w, r, err, applog.OpCreate, "recurring_bill", "")
		return
	}

	events := []string{EventRecurringRefresh, EventFormReset}
	if bill.InstallmentsPaid > 0 {
		events = append(events, EventTransactionsRefresh, EventDashboardRefresh)
	}
	NewResponse().
		Status(http.StatusCreated).
		JSON(bill).
		TriggerRefresh(events...).
		TriggerSuccessNotification("Conta recorrente criada!").
		Write(w)
}

func (s *Server) handleBillActive(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	active, err := p.Bool("active")
	if err != nil || !p.Has("active") {
		writeError(w, r, core.FieldErrors{"active": MsgInvalidRequest}, applog.OpUpdate, "recurring_bill", id)
		return
	}
	bill, err := s.deps.Bills.SetActive(r.Context(), userID(r.Context()), id, active)
	if err != nil {
		writeError(w, r, err, applog.OpUpdate, "recurring_bill", id)
		return
	}
	NewResponse().
		JSON(bill).
		TriggerRefresh(EventRecurringRefresh).
		TriggerSuccessNotification("Status atualizado!").
		Write(w)
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Bills.Delete(r.Context(), userID(r.Context()), id); err != nil {
		writeError(w, r, err, applog.OpDelete, "recurring_bill", id)
		return
	}
	NewResponse().
		Status(http.StatusNoContent).
		TriggerRefresh(EventRecurringRefresh, EventTransactionsRefresh).
		TriggerSuccessNotification("Conta recorrente excluída!").
		Write(w)
}

type processResponse struct {
	BillsScanned int      `json:"billsScanned"`
	Generated    int      `json:"generated"`
	Failed       []string `json:"failed,omitempty"`
}

// handleProcessBills runs the recurring processor for the caller on demand.
func (s *Server) handleProcessBills(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Processor.ProcessUser(r.Context(), userID(r.Context()), s.now())
	if err != nil {
		writeError(w, r, err, applog.OpProcess, "recurring_bill", "")
		return
	}

	out := processResponse{BillsScanned: res.BillsScanned, Generated: res.Generated}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, f.Name)
	}

	resp := NewResponse().JSON(out)
	switch {
	case len(out.Failed) > 0:
		resp.TriggerNotification(NotificationWarning,
			fmt.Sprintf("%d conta(s) recorrente(s) não processada(s)", len(out.Failed)), 5000)
	case out.Generated > 0:
		resp.TriggerSuccessNotification(fmt.Sprintf("%d lançamento(s) gerado(s)", out.Generated))
	}
	if out.Generated > 0 {
		resp.TriggerRefresh(EventTransactionsRefresh, EventRecurringRefresh, EventDashboardRefresh)
	}
	resp.Write(w)
}

package http

import (
	"net/http"

	"carteira/internal/core"
	applog "carteira/internal/log"
	"carteira/internal/services"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	kind := core.CategoryKind(query(r, "kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, r, core.FieldErrors{"kind": core.ErrInvalidKind.Error()}, applog.OpList, "category", "")
		return
	}
	cats, err := s.deps.Categories.List(r.Context(), userID(r.Context()), kind)
	if err != nil {
		writeError(w, r, err, applog.OpList, "category", "")
		return
	}
	NewResponse().JSON(cats).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	in := services.CategoryInput{Name: p.Get("name"), Kind: core.CategoryKind(p.Get("kind"))}
	cat, err := s.deps.Categories.Create(r.Context(), userID(r.Context()), in)
	if err != nil {
		writeError(w, r, err, applog.OpCreate, "category", "")
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		JSON(cat).
		TriggerRefresh(EventCategoriesRefresh, EventFormReset).
		TriggerSuccessNotification("Categoria criada!").
		Write(w)
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	cat, err := s.deps.Categories.Rename(r.Context(), userID(r.Context()), id, p.Get("name"))
	if err != nil {
		writeError(w, r, err, applog.OpUpdate, "category", id)
		return
	}
	NewResponse().
		JSON(cat).
		TriggerRefresh(EventCategoriesRefresh, EventTransactionsRefresh, EventDashboardRefresh).
		TriggerSuccessNotification("Categoria atualizada!").
		Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Categories.Delete(r.Context(), userID(r.Context()), id); err != nil {
		writeError(w, r, err, applog.OpDelete, "category", id)
		return
	}
	NewResponse().
		Status(http.StatusNoContent).
		TriggerRefresh(EventCategoriesRefresh).
		TriggerSuccessNotification("Categoria excluída!").
		Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.deps.Transactions.List(r.Context(), userID(r.Context()), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, err, applog.OpList, "transaction", "")
		return
	}
	NewResponse().JSON(txs).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	in := services.TransactionInput{
		CategoryID:  p.Get("categoryId"),
		Amount:      p.Get("amount"),
		Date:        p.Get("date"),
		Description: p.Get("description"),
	}
	tx, err := s.deps.Transactions.Create(r.Context(), userID(r.Context()), in)
	if err != nil {
		writeError(w, r, err, applog.OpCreate, "transaction", "")
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Transaction created",
		applog.NewFields().WithEntity("transaction", tx.ID).WithAmount(tx.Amount).ToSlice()...)

	NewResponse().
		Status(http.StatusCreated).
		JSON(tx).
		TriggerRefresh(EventTransactionsRefresh, EventDashboardRefresh, EventFormReset).
		TriggerSuccessNotification("Movimentação registrada!").
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Transactions.Delete(r.Context(), userID(r.Context()), id); err != nil {
		writeError(w, r, err, applog.OpDelete, "transaction", id)
		return
	}
	NewResponse().
		Status(http.StatusNoContent).
		TriggerRefresh(EventTransactionsRefresh, EventDashboardRefresh).
		TriggerSuccessNotification("Movimentação excluída!").
		Write(w)
}

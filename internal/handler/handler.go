// Package handler содержит HTTP-обработчики API сервиса заказов поставщикам.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-orders/internal/calendar"
	"github.com/mmeshcher/supplier-orders/internal/ledger"
	"github.com/mmeshcher/supplier-orders/internal/middleware"
	"github.com/mmeshcher/supplier-orders/internal/model"
	"github.com/mmeshcher/supplier-orders/internal/validation"
)

const storageUnavailableMessage = "order ledger is temporarily unavailable, please retry"

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	WeekModel(ctx context.Context, company string, week calendar.Key) (model.WeekModel, error)
	WeekSummary(ctx context.Context, company string, week calendar.Key) (model.WeekSummary, error)
	GetWeek(ctx context.Context, company string, week calendar.Key) ([]model.OrderEntry, error)
	AddEntry(ctx context.Context, company string, e model.NewEntry) (model.OrderEntry, error)
	DeleteOrders(ctx context.Context, company, providerCode string, receiveDate calendar.Key) (int, error)
	SubscribeWeek(company string, week calendar.Key, onValue func([]model.OrderEntry), onError func(error)) func()
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError переводит ошибки журнала в ответы: сообщение проверки передаётся как есть,
// подробности ошибок хранилища остаются в логе.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	switch {
	case ledger.IsValidation(err):
		writeMessage(w, http.StatusUnprocessableEntity, err.Error())
	case ledger.IsStorage(err):
		h.logger.Error(op+" storage error", append(fields, zap.Error(err))...)
		writeMessage(w, http.StatusInternalServerError, storageUnavailableMessage)
	default:
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		writeMessage(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func companyFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	company, ok := middleware.GetCompanyFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return company, ok
}

// weekParam разбирает {week}: любой день недели в формате YYYY-MM-DD.
func weekParam(w http.ResponseWriter, r *http.Request) (calendar.Key, bool) {
	k, err := calendar.Parse(chi.URLParam(r, "week"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "week must be a date in YYYY-MM-DD format")
		return 0, false
	}
	return calendar.WeekStart(k), true
}

type sessionRequest struct {
	Company string `json:"company"`
}

// CreateSession привязывает клиента к компании.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	company := strings.TrimSpace(req.Company)
	if company == "" {
		writeMessage(w, http.StatusBadRequest, "company must not be empty")
		return
	}

	h.authMiddleware.SetCompanyCookie(w, company)
	w.WriteHeader(http.StatusNoContent)
}

// GetWeekModel возвращает модель недели: кому заказывать и от кого ждать поставку по дням.
func (h *Handler) GetWeekModel(w http.ResponseWriter, r *http.Request) {
	company, ok := companyFrom(w, r)
	if !ok {
		return
	}
	week, ok := weekParam(w, r)
	if !ok {
		return
	}

	wm, err := h.service.WeekModel(r.Context(), company, week)
	if err != nil {
		h.writeError(w, "week model", err, zap.String("company", company), zap.Stringer("week", week))
		return
	}

	writeJSON(w, http.StatusOK, wm)
}

// GetWeekSummary возвращает свод недели с суммами заказов по дням получения.
func (h *Handler) GetWeekSummary(w http.ResponseWriter, r *http.Request) {
	company, ok := companyFrom(w, r)
	if !ok {
		return
	}
	week, ok := weekParam(w, r)
	if !ok {
		return
	}

	summary, err := h.service.WeekSummary(r.Context(), company, week)
	if err != nil {
		h.writeError(w, "week summary", err, zap.String("company", company), zap.Stringer("week", week))
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GetWeekOrders возвращает заказы недели.
func (h *Handler) GetWeekOrders(w http.ResponseWriter, r *http.Request) {
	company, ok := companyFrom(w, r)
	if !ok {
		return
	}
	week, ok := weekParam(w, r)
	if !ok {
		return
	}

	entries, err := h.service.GetWeek(r.Context(), company, week)
	if err != nil {
		h.writeError(w, "get week", err, zap.String("company", company), zap.Stringer("week", week))
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

type addOrderRequest struct {
	ProviderCode string          `json:"providerCode"`
	ProviderName string          `json:"providerName"`
	CreateDate   string          `json:"createDate"`
	ReceiveDate  string          `json:"receiveDate"`
	Amount       decimal.Decimal `json:"amount"`
}

func (req addOrderRequest) toEntry() (model.NewEntry, error) {
	e := model.NewEntry{
		ProviderCode: strings.TrimSpace(req.ProviderCode),
		ProviderName: strings.TrimSpace(req.ProviderName),
		Amount:       req.Amount,
	}

	var err error
	if e.CreateDate, err = calendar.Parse(req.CreateDate); err != nil {
		return e, &validation.ValidationError{Field: "createDate", Reason: "must be a date in YYYY-MM-DD format"}
	}
	if e.ReceiveDate, err = calendar.Parse(req.ReceiveDate); err != nil {
		return e, &validation.ValidationError{Field: "receiveDate", Reason: "must be a date in YYYY-MM-DD format"}
	}
	return e, nil
}

// AddOrder сохраняет заказ поставщику в журнал.
func (h *Handler) AddOrder(w http.ResponseWriter, r *http.Request) {
	company, ok := companyFrom(w, r)
	if !ok {
		return
	}

	var req addOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	e, err := req.toEntry()
	if err != nil {
		h.writeError(w, "add order", err)
		return
	}

	entry, err := h.service.AddEntry(r.Context(), company, e)
	if err != nil {
		h.writeError(w, "add order", err, zap.String("company", company), zap.String("provider", e.ProviderCode))
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

type deleteOrdersResponse struct {
	Removed int `json:"removed"`
}

// DeleteOrders удаляет заказы поставщика с указанной датой получения.
func (h *Handler) DeleteOrders(w http.ResponseWriter, r *http.Request) {
	company, ok := companyFrom(w, r)
	if !ok {
		return
	}

	provider := strings.TrimSpace(r.URL.Query().Get("provider"))
	if provider == "" {
		writeMessage(w, http.StatusBadRequest, "provider must not be empty")
		return
	}

	receive, err := calendar.Parse(r.URL.Query().Get("receive"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "receive must be a date in YYYY-MM-DD format")
		return
	}

	removed, err := h.service.DeleteOrders(r.Context(), company, provider, receive)
	if err != nil {
		h.writeError(w, "delete orders", err, zap.String("company", company), zap.String("provider", provider))
		return
	}

	writeJSON(w, http.StatusOK, deleteOrdersResponse{Removed: removed})
}

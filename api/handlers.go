/*
handlers.go - HTTP API handlers for the payment tracking system

PURPOSE:
  Exposes clients, contracts and payments over REST. Handlers parse and
  validate HTTP input, delegate persistence to the store and all fee math
  to the fees package, and serialize DTOs.

ENDPOINTS:
  Clients:
    GET    /api/clients                    List clients (?provider= filter)
    GET    /api/clients/{id}               Client with compliance status
    GET    /api/clients/{id}/summary       Contract, metrics and summaries
    GET    /api/clients/{id}/contract      Active contract + reference rates
    GET    /api/clients/{id}/payments      Payment history (paged)

  Payments:
    GET    /api/payments/{id}              Single payment with variance
    POST   /api/payments                   Record a payment
    PUT    /api/payments/{id}              Edit a payment
    DELETE /api/payments/{id}              Soft-delete a payment

  Periods:
    GET    /api/contracts/{id}/periods     Selectable applied periods

ERROR HANDLING:
  - 400: invalid body, unknown contract, invalid applied range
  - 404: missing client/payment/contract
  - 500: storage failures
  Payment variance is computed fresh per response and never stored.

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router and middleware
*/
package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Noodieknoodie/4GPTK/fees"
	"github.com/Noodieknoodie/4GPTK/store/sqlite"
)

// Handler holds the dependencies shared by all HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Log        *logrus.Logger
	Thresholds fees.Thresholds
}

// NewHandler creates a handler with the default variance thresholds.
func NewHandler(store *sqlite.Store, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Store:      store,
		Log:        log,
		Thresholds: fees.DefaultThresholds(),
	}
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients with their compliance status.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context(), r.URL.Query().Get("provider"))
	if err != nil {
		h.internalError(w, "Failed to list clients", err)
		return
	}

	today := time.Now().UTC()
	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = h.toClientDTO(c, today)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClient returns a single client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	client, err := h.Store.GetClient(r.Context(), id)
	if err != nil {
		h.internalError(w, "Failed to get client", err)
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "Client not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, h.toClientDTO(*client, time.Now().UTC()))
}

// GetClientSummary returns the client dashboard payload: contract terms,
// cached metrics and the recent quarterly/yearly aggregates.
func (h *Handler) GetClientSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	client, err := h.Store.GetClient(ctx, id)
	if err != nil {
		h.internalError(w, "Failed to get client", err)
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "Client not found", nil)
		return
	}

	summary := ClientSummaryDTO{
		Client:             h.toClientDTO(*client, time.Now().UTC()),
		QuarterlySummaries: []QuarterlySummaryDTO{},
		YearlySummaries:    []YearlySummaryDTO{},
	}

	if contract, err := h.Store.GetClientContract(ctx, id); err != nil {
		h.internalError(w, "Failed to get contract", err)
		return
	} else if contract != nil {
		dto := toContractDTO(*contract)
		summary.Contract = &dto
	}

	metrics, err := h.Store.GetClientMetrics(ctx, id)
	if err != nil {
		h.internalError(w, "Failed to get metrics", err)
		return
	}
	if metrics != nil {
		summary.Metrics = &MetricsDTO{
			LastPaymentDate:     metrics.LastPaymentDate.String,
			LastPaymentAmount:   floatPtr(metrics.LastPaymentAmount),
			LastPaymentQuarter:  intPtr(metrics.LastPaymentQuarter),
			LastPaymentYear:     intPtr(metrics.LastPaymentYear),
			TotalYTDPayments:    floatPtr(metrics.TotalYTDPayments),
			AvgQuarterlyPayment: floatPtr(metrics.AvgQuarterlyPayment),
			LastRecordedAssets:  floatPtr(metrics.LastRecordedAssets),
		}
	}

	quarters, err := h.Store.QuarterlySummaries(ctx, id, 8)
	if err != nil {
		h.internalError(w, "Failed to get quarterly summaries", err)
		return
	}
	for _, q := range quarters {
		summary.QuarterlySummaries = append(summary.QuarterlySummaries, QuarterlySummaryDTO{
			Year:          q.Year,
			Quarter:       q.Quarter,
			TotalPayments: floatPtr(q.TotalPayments),
			TotalAssets:   floatPtr(q.TotalAssets),
			PaymentCount:  q.PaymentCount,
			AvgPayment:    floatPtr(q.AvgPayment),
			ExpectedTotal: floatPtr(q.ExpectedTotal),
		})
	}

	years, err := h.Store.YearlySummaries(ctx, id, 5)
	if err != nil {
		h.internalError(w, "Failed to get yearly summaries", err)
		return
	}
	for _, y := range years {
		summary.YearlySummaries = append(summary.YearlySummaries, YearlySummaryDTO{
			Year:          y.Year,
			TotalPayments: floatPtr(y.TotalPayments),
			TotalAssets:   floatPtr(y.TotalAssets),
			PaymentCount:  y.PaymentCount,
			AvgPayment:    floatPtr(y.AvgPayment),
			YoYGrowth:     floatPtr(y.YoYGrowth),
		})
	}

	writeJSON(w, http.StatusOK, summary)
}

// GetClientContract returns the client's active contract.
func (h *Handler) GetClientContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	contract, err := h.Store.GetClientContract(r.Context(), id)
	if err != nil {
		h.internalError(w, "Failed to get contract", err)
		return
	}
	if contract == nil {
		writeError(w, http.StatusNotFound, "Contract not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toContractDTO(*contract))
}

func (h *Handler) toClientDTO(c sqlite.Client, today time.Time) ClientDTO {
	dto := ClientDTO{
		ClientID:          c.ClientID,
		DisplayName:       c.DisplayName,
		FullName:          c.FullName.String,
		ProviderName:      c.ProviderName.String,
		LastPaymentDate:   c.LastPaymentDate.String,
		LastPaymentAmount: floatPtr(c.LastPaymentAmount),
	}

	var lastPayment *time.Time
	if c.LastPaymentDate.Valid {
		if parsed, err := time.Parse("2006-01-02", c.LastPaymentDate.String); err == nil {
			lastPayment = &parsed
		}
	}
	status, reason := fees.ComplianceStatus(lastPayment, fees.Schedule(c.PaymentSchedule.String), today)
	dto.ComplianceStatus = string(status)
	dto.ComplianceReason = reason
	return dto
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListClientPayments returns a page of the client's payment history, each
// row enriched with derived split/period/variance details.
func (h *Handler) ListClientPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)
	if limit > 100 {
		limit = 100
	}

	var year *int
	if raw := r.URL.Query().Get("year"); raw != "" && raw != "null" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year filter", err)
			return
		}
		year = &y
	}

	payments, err := h.Store.ListClientPayments(r.Context(), id, page, limit, year)
	if err != nil {
		h.internalError(w, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = h.toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPayment returns a single payment with derived details.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	payment, err := h.Store.GetPayment(r.Context(), id)
	if err != nil {
		h.internalError(w, "Failed to get payment", err)
		return
	}
	if payment == nil {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, h.toPaymentDTO(*payment))
}

// CreatePayment records a new payment. The expected fee is snapshotted at
// entry time from the contract terms when the request omits it.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	row, ok := h.paymentFromRequest(w, r, req)
	if !ok {
		return
	}

	id, err := h.Store.CreatePayment(r.Context(), *row)
	if err != nil {
		h.internalError(w, "Failed to create payment", err)
		return
	}
	h.refreshDerived(r, req.ClientID)

	created, err := h.Store.GetPayment(r.Context(), id)
	if err != nil || created == nil {
		h.internalError(w, "Failed to load created payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toPaymentDTO(*created))
}

// UpdatePayment replaces a payment's amount and applied-period fields.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	row, ok := h.paymentFromRequest(w, r, req)
	if !ok {
		return
	}
	row.PaymentID = id

	found, err := h.Store.UpdatePayment(r.Context(), *row)
	if err != nil {
		h.internalError(w, "Failed to update payment", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}
	h.refreshDerived(r, req.ClientID)

	updated, err := h.Store.GetPayment(r.Context(), id)
	if err != nil || updated == nil {
		h.internalError(w, "Failed to load updated payment", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPaymentDTO(*updated))
}

// DeletePayment soft-deletes a payment.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	payment, err := h.Store.GetPayment(r.Context(), id)
	if err != nil {
		h.internalError(w, "Failed to get payment", err)
		return
	}

	deleted, err := h.Store.DeletePayment(r.Context(), id)
	if err != nil {
		h.internalError(w, "Failed to delete payment", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}
	if payment != nil {
		h.refreshDerived(r, payment.ClientID)
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetAvailablePeriods returns the selectable applied periods for a
// contract, most recent first.
func (h *Handler) GetAvailablePeriods(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	contract, err := h.Store.GetContract(r.Context(), id)
	if err != nil {
		h.internalError(w, "Failed to get contract", err)
		return
	}
	if contract == nil {
		writeJSON(w, http.StatusOK, AvailablePeriodsDTO{Periods: []fees.PeriodOption{}})
		return
	}

	periods := fees.ListAvailablePeriods(contract.Domain(), time.Now().UTC())
	if periods == nil {
		periods = []fees.PeriodOption{}
	}
	writeJSON(w, http.StatusOK, AvailablePeriodsDTO{Periods: periods})
}

// =============================================================================
// REQUEST -> ROW
// =============================================================================

// paymentFromRequest validates the request against the contract and builds
// the payment row. Writes the HTTP error response itself on failure.
func (h *Handler) paymentFromRequest(w http.ResponseWriter, r *http.Request, req PaymentRequest) (*sqlite.Payment, bool) {
	if req.ActualFee == nil {
		writeError(w, http.StatusBadRequest, "actual_fee is required", nil)
		return nil, false
	}
	if req.ReceivedDate == "" {
		writeError(w, http.StatusBadRequest, "received_date is required", nil)
		return nil, false
	}
	if _, err := time.Parse("2006-01-02", req.ReceivedDate); err != nil {
		writeError(w, http.StatusBadRequest, "received_date must be YYYY-MM-DD", err)
		return nil, false
	}

	contractRow, err := h.Store.GetContract(r.Context(), req.ContractID)
	if err != nil {
		h.internalError(w, "Failed to get contract", err)
		return nil, false
	}
	if contractRow == nil {
		writeError(w, http.StatusBadRequest, "Unknown contract", nil)
		return nil, false
	}
	contract := contractRow.Domain()

	start, end, perr := req.appliedRange(contract.Schedule)
	if perr != nil {
		writeError(w, http.StatusBadRequest, "Invalid applied period", perr)
		return nil, false
	}
	if _, err := fees.ExpandPeriods(contract.Schedule, start, end); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid applied period range", err)
		return nil, false
	}

	row := sqlite.Payment{
		ContractID:   req.ContractID,
		ClientID:     req.ClientID,
		ReceivedDate: req.ReceivedDate,
		ActualFee:    decimal.NewFromFloat(*req.ActualFee),
		Method:       nullString(req.Method),
		Notes:        nullString(req.Notes),
	}
	row.SetAppliedRange(contract.Schedule, start, end)

	var assets *decimal.Decimal
	if req.TotalAssets != nil {
		d := decimal.NewFromFloat(*req.TotalAssets)
		assets = &d
		row.TotalAssets = decimal.NullDecimal{Decimal: d, Valid: true}
	}

	// Expected fee is a snapshot taken at entry time; later contract rate
	// changes do not rewrite history.
	if req.ExpectedFee != nil {
		row.ExpectedFee = decimal.NullDecimal{Decimal: decimal.NewFromFloat(*req.ExpectedFee), Valid: true}
	} else if expected := fees.ComputeExpectedFee(contract, assets); expected.Fee != nil {
		row.ExpectedFee = decimal.NullDecimal{Decimal: *expected.Fee, Valid: true}
	}

	return &row, true
}

// appliedRange extracts the period endpoints matching the schedule. An
// omitted end defaults to the start (non-split payment).
func (req PaymentRequest) appliedRange(schedule fees.Schedule) (start, end fees.Period, err error) {
	if schedule == fees.ScheduleMonthly {
		if req.AppliedStartMonth == nil || req.AppliedStartMonthYear == nil {
			return start, end, &fees.RangeError{Reason: "applied_start_month and applied_start_month_year are required for monthly contracts"}
		}
		start = fees.Month(*req.AppliedStartMonth, *req.AppliedStartMonthYear)
		end = start
		if req.AppliedEndMonth != nil && req.AppliedEndMonthYear != nil {
			end = fees.Month(*req.AppliedEndMonth, *req.AppliedEndMonthYear)
		}
		return start, end, nil
	}

	if req.AppliedStartQuarter == nil || req.AppliedStartQuarterYear == nil {
		return start, end, &fees.RangeError{Reason: "applied_start_quarter and applied_start_quarter_year are required for quarterly contracts"}
	}
	start = fees.Quarter(*req.AppliedStartQuarter, *req.AppliedStartQuarterYear)
	end = start
	if req.AppliedEndQuarter != nil && req.AppliedEndQuarterYear != nil {
		end = fees.Quarter(*req.AppliedEndQuarter, *req.AppliedEndQuarterYear)
	}
	return start, end, nil
}

// refreshDerived rebuilds the client's summaries and metrics after a
// payment mutation. Failures are logged, not surfaced: the mutation itself
// already succeeded.
func (h *Handler) refreshDerived(r *http.Request, clientID int64) {
	ctx := r.Context()
	if err := h.Store.RebuildSummaries(ctx, clientID); err != nil {
		h.Log.WithError(err).WithField("client_id", clientID).Warn("failed to rebuild summaries")
	}
	if err := h.Store.RefreshClientMetrics(ctx, clientID); err != nil {
		h.Log.WithError(err).WithField("client_id", clientID).Warn("failed to refresh metrics")
	}
}

// =============================================================================
// ROW -> DTO
// =============================================================================

// toPaymentDTO enriches a payment row with the derived display fields:
// split detection by period equality, per-period allocations for splits,
// and a freshly classified variance.
func (h *Handler) toPaymentDTO(p sqlite.PaymentDetail) PaymentDTO {
	actual, _ := p.ActualFee.Round(2).Float64()
	dto := PaymentDTO{
		PaymentID:    p.PaymentID,
		ContractID:   p.ContractID,
		ClientID:     p.ClientID,
		ReceivedDate: p.ReceivedDate,
		TotalAssets:  floatPtr(p.TotalAssets),
		ExpectedFee:  floatPtr(p.ExpectedFee),
		ActualFee:    actual,
		Method:       p.Method.String,
		Notes:        p.Notes.String,

		AppliedStartMonth:       intPtr(p.AppliedStartMonth),
		AppliedStartMonthYear:   intPtr(p.AppliedStartMonthYear),
		AppliedEndMonth:         intPtr(p.AppliedEndMonth),
		AppliedEndMonthYear:     intPtr(p.AppliedEndMonthYear),
		AppliedStartQuarter:     intPtr(p.AppliedStartQuarter),
		AppliedStartQuarterYear: intPtr(p.AppliedStartQuarterYear),
		AppliedEndQuarter:       intPtr(p.AppliedEndQuarter),
		AppliedEndQuarterYear:   intPtr(p.AppliedEndQuarterYear),

		ClientName:      p.ClientName.String,
		ProviderName:    p.ProviderName.String,
		FeeType:         p.FeeType.String,
		PaymentSchedule: p.PaymentSchedule.String,
	}

	schedule := fees.Schedule(p.PaymentSchedule.String)
	if start, end, ok := p.AppliedRange(); ok {
		dto.IsSplitPayment = fees.IsSplit(start, end)
		if dto.IsSplitPayment {
			if periods, err := fees.ExpandPeriods(schedule, start, end); err == nil {
				for _, alloc := range fees.AllocateAcrossPeriods(p.ActualFee, periods) {
					amount, _ := alloc.Amount.Round(2).Float64()
					dto.Periods = append(dto.Periods, PeriodAmountDTO{
						Period: alloc.Period.Label(),
						Amount: amount,
					})
				}
			}
		}
	}

	dto.Variance = toVarianceDTO(fees.ClassifyWith(h.Thresholds, h.effectiveExpected(p), p.ActualFee))
	return dto
}

// effectiveExpected returns the stored expected-fee snapshot, falling back
// to recomputing from the joined contract terms for legacy rows that never
// had one recorded.
func (h *Handler) effectiveExpected(p sqlite.PaymentDetail) *decimal.Decimal {
	if p.ExpectedFee.Valid {
		fee := p.ExpectedFee.Decimal
		return &fee
	}
	if !p.TotalAssets.Valid || !p.PercentRate.Valid {
		return nil
	}
	if fees.ParseFeeType(p.FeeType.String) != fees.FeePercentage {
		return nil
	}
	fee := p.TotalAssets.Decimal.Mul(p.PercentRate.Decimal)
	return &fee
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func nullString(s string) (ns sql.NullString) {
	if s != "" {
		ns.String = s
		ns.Valid = true
	}
	return ns
}

func (h *Handler) internalError(w http.ResponseWriter, message string, err error) {
	h.Log.WithError(err).Error(message)
	writeError(w, http.StatusInternalServerError, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

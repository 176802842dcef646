/*
handlers_test.go - HTTP API tests

TEST STRATEGY:
  Tests run the full chi router against a real in-memory SQLite store.
  Each test seeds its own client and contract, then exercises endpoints
  through httptest and asserts on the decoded DTOs.
*/
package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noodieknoodie/4GPTK/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestAPI(t *testing.T) (http.Handler, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return NewRouter(NewHandler(store, log)), store
}

// seedQuarterlyClient creates a client with an active quarterly percentage
// contract at 0.5% per quarter.
func seedQuarterlyClient(t *testing.T, store *sqlite.Store) (clientID, contractID int64) {
	t.Helper()
	ctx := context.Background()

	clientID, err := store.SaveClient(ctx, "Acme Corp", "Acme Corporation 401k Plan")
	require.NoError(t, err)

	contractID, err = store.SaveContract(ctx, sqlite.Contract{
		ClientID:          clientID,
		ContractNumber:    sql.NullString{String: "ACME-001", Valid: true},
		ProviderName:      sql.NullString{String: "Fidelity", Valid: true},
		ContractStartDate: sql.NullString{String: "2024-01-01", Valid: true},
		FeeType:           "percentage",
		PercentRate:       decimal.NullDecimal{Decimal: decimal.NewFromFloat(0.005), Valid: true},
		PaymentSchedule:   "quarterly",
	})
	require.NoError(t, err)
	return clientID, contractID
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func quarterlyRequest(clientID, contractID int64, actual float64, startQ, startY, endQ, endY int) PaymentRequest {
	assets := 200000.0
	return PaymentRequest{
		ContractID:              contractID,
		ClientID:                clientID,
		ReceivedDate:            "2025-04-15",
		TotalAssets:             &assets,
		ActualFee:               &actual,
		AppliedStartQuarter:     &startQ,
		AppliedStartQuarterYear: &startY,
		AppliedEndQuarter:       &endQ,
		AppliedEndQuarterYear:   &endY,
	}
}

// =============================================================================
// HEALTH AND CLIENTS
// =============================================================================

func TestHealth(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := doRequest(t, router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestListClients_IncludesComplianceStatus(t *testing.T) {
	// GIVEN a client with no payments on file
	router, store := newTestAPI(t)
	seedQuarterlyClient(t, store)

	// WHEN listing clients
	rec := doRequest(t, router, http.MethodGet, "/api/clients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	clients := decodeInto[[]ClientDTO](t, rec)

	// THEN the client is red: nothing has ever been paid
	require.Len(t, clients, 1)
	assert.Equal(t, "Acme Corp", clients[0].DisplayName)
	assert.Equal(t, "Fidelity", clients[0].ProviderName)
	assert.Equal(t, "red", clients[0].ComplianceStatus)
}

func TestListClients_ProviderFilter(t *testing.T) {
	router, store := newTestAPI(t)
	seedQuarterlyClient(t, store)

	rec := doRequest(t, router, http.MethodGet, "/api/clients?provider=Vanguard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, decodeInto[[]ClientDTO](t, rec))
}

func TestGetClient_NotFound(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := doRequest(t, router, http.MethodGet, "/api/clients/9999", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetClientContract_IncludesReferenceRates(t *testing.T) {
	// GIVEN a quarterly 0.5% contract
	router, store := newTestAPI(t)
	clientID, _ := seedQuarterlyClient(t, store)

	// WHEN fetching the active contract
	rec := doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/clients/%d/contract", clientID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	contract := decodeInto[ContractDTO](t, rec)

	// THEN the derived rates are present in all three frames
	assert.Equal(t, "percentage", contract.FeeType)
	require.NotNil(t, contract.ReferenceRates)
	assert.Equal(t, "0.5000%", contract.ReferenceRates.Quarterly)
	assert.Equal(t, "2.0000%", contract.ReferenceRates.Annual)
}

// =============================================================================
// PAYMENT LIFECYCLE
// =============================================================================

func TestCreatePayment_SnapshotsExpectedFee(t *testing.T) {
	// GIVEN a quarterly percentage contract and a request that omits the
	// expected fee
	router, store := newTestAPI(t)
	clientID, contractID := seedQuarterlyClient(t, store)

	// WHEN recording a payment with $200,000 in assets
	rec := doRequest(t, router, http.MethodPost, "/api/payments",
		quarterlyRequest(clientID, contractID, 1000, 1, 2025, 1, 2025))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decodeInto[PaymentDTO](t, rec)

	// THEN the expected fee was computed from the contract and the payment
	// matches it exactly
	require.NotNil(t, payment.ExpectedFee)
	assert.InDelta(t, 1000.0, *payment.ExpectedFee, 0.001)
	assert.False(t, payment.IsSplitPayment)
	require.NotNil(t, payment.Variance)
	assert.Equal(t, "exact", payment.Variance.Status)
}

func TestCreatePayment_VarianceBands(t *testing.T) {
	// GIVEN an expected fee of $1,000
	router, store := newTestAPI(t)
	clientID, contractID := seedQuarterlyClient(t, store)

	// WHEN paying $1,200 (20% over)
	rec := doRequest(t, router, http.MethodPost, "/api/payments",
		quarterlyRequest(clientID, contractID, 1200, 1, 2025, 1, 2025))
	require.Equal(t, http.StatusCreated, rec.Code)
	payment := decodeInto[PaymentDTO](t, rec)

	// THEN the variance is an alert with a signed overpayment message
	require.NotNil(t, payment.Variance)
	assert.Equal(t, "alert", payment.Variance.Status)
	assert.Contains(t, payment.Variance.Message, "Overpaid")
}

func TestCreatePayment_MissingAssets_VarianceUnknown(t *testing.T) {
	// GIVEN a request without assets or an expected fee
	router, store := newTestAPI(t)
	clientID, contractID := seedQuarterlyClient(t, store)

	req := quarterlyRequest(clientID, contractID, 500, 1, 2025, 1, 2025)
	req.TotalAssets = nil

	// WHEN recording the payment
	rec := doRequest(t, router, http.MethodPost, "/api/payments", req)
	require.Equal(t, http.StatusCreated, rec.Code)
	payment := decodeInto[PaymentDTO](t, rec)

	// THEN no expected fee could be derived and the variance is unknown,
	// never a zero-expected alert
	assert.Nil(t, payment.ExpectedFee)
	require.NotNil(t, payment.Variance)
	assert.Equal(t, "unknown", payment.Variance.Status)
	assert.Contains(t, payment.Variance.Message, "AUM")
}

func TestCreatePayment_SplitAllocations(t *testing.T) {
	// GIVEN a payment covering Q3 2024 through Q1 2025
	router, store := newTestAPI(t)
	clientID, contractID := seedQuarterlyClient(t, store)

	// WHEN recording $3,000 across the three quarters
	rec := doRequest(t, router, http.MethodPost, "/api/payments",
		quarterlyRequest(clientID, contractID, 3000, 3, 2024, 1, 2025))
	require.Equal(t, http.StatusCreated, rec.Code)
	payment := decodeInto[PaymentDTO](t, rec)

	// THEN the split is derived from period inequality and allocated evenly
	assert.True(t, payment.IsSplitPayment)
	require.Len(t, payment.Periods, 3)
	assert.Equal(t, "Q3 2024", payment.Periods[0].Period)
	assert.Equal(t, "Q1 2025", payment.Periods[2].Period)
	for _, p := range payment.Periods {
		assert.InDelta(t, 1000.0, p.Amount, 0.001)
	}
}

func TestCreatePayment_EndBeforeStart_Rejected(t *testing.T) {
	router, store := newTestAPI(t)
	clientID, contractID := seedQuarterlyClient(t, store)

	rec := doRequest(t, router, http.MethodPost, "/api/payments",
		quarterlyRequest(clientID, contractID, 1000, 3, 2025, 1, 2025))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePayment_MissingActualFee_Rejected(t *testing.T) {
	router, store := newTestAPI(t)
	clientID, contractID := seedQuarterlyClient(t, store)

	req := quarterlyRequest(clientID, contractID, 0, 1, 2025, 1, 2025)
	req.ActualFee = nil

	rec := doRequest(t, router, http.MethodPost, "/api/payments", req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePayment_WrongScheduleFields_Rejected(t *testing.T) {
	// GIVEN a quarterly contract and a request carrying only monthly fields
	router, store := newTestAPI(t)
	clientID, contractID := seedQuarterlyClient(t, store)

	month, year := 3, 2025
	actual := 1000.0
	req := PaymentRequest{
		ContractID:            contractID,
		ClientID:              clientID,
		ReceivedDate:          "2025-04-15",
		ActualFee:             &actual,
		AppliedStartMonth:     &month,
		AppliedStartMonthYear: &year,
	}

	rec := doRequest(t, router, http.MethodPost, "/api/payments", req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentLifecycle_UpdateAndDelete(t *testing.T) {
	// GIVEN a recorded payment
	router, store := newTestAPI(t)
	clientID, contractID := seedQuarterlyClient(t, store)

	rec := doRequest(t, router, http.MethodPost, "/api/payments",
		quarterlyRequest(clientID, contractID, 1000, 1, 2025, 1, 2025))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeInto[PaymentDTO](t, rec)

	// WHEN correcting the amount
	update := quarterlyRequest(clientID, contractID, 1050, 1, 2025, 1, 2025)
	rec = doRequest(t, router, http.MethodPut, fmt.Sprintf("/api/payments/%d", created.PaymentID), update)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeInto[PaymentDTO](t, rec)

	// THEN the new amount reclassifies as acceptable (5% over)
	assert.Equal(t, 1050.0, updated.ActualFee)
	require.NotNil(t, updated.Variance)
	assert.Equal(t, "acceptable", updated.Variance.Status)

	// WHEN deleting it
	rec = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/payments/%d", created.PaymentID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// THEN it is gone, and deleting again reports not found
	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/payments/%d", created.PaymentID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/payments/%d", created.PaymentID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListClientPayments_Paged(t *testing.T) {
	// GIVEN three payments in different quarters
	router, store := newTestAPI(t)
	clientID, contractID := seedQuarterlyClient(t, store)
	for q := 1; q <= 3; q++ {
		rec := doRequest(t, router, http.MethodPost, "/api/payments",
			quarterlyRequest(clientID, contractID, 1000, q, 2025, q, 2025))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	// WHEN fetching page 2 with one row per page
	rec := doRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/clients/%d/payments?page=2&limit=1", clientID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN exactly one row comes back
	assert.Len(t, decodeInto[[]PaymentDTO](t, rec), 1)
}

// =============================================================================
// SUMMARY AND PERIODS
// =============================================================================

func TestGetClientSummary_AfterPayments(t *testing.T) {
	// GIVEN a client with a recorded payment
	router, store := newTestAPI(t)
	clientID, contractID := seedQuarterlyClient(t, store)
	rec := doRequest(t, router, http.MethodPost, "/api/payments",
		quarterlyRequest(clientID, contractID, 1000, 1, 2025, 1, 2025))
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN fetching the summary
	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/clients/%d/summary", clientID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeInto[ClientSummaryDTO](t, rec)

	// THEN contract, metrics and the quarterly aggregate are populated
	require.NotNil(t, summary.Contract)
	require.NotNil(t, summary.Metrics)
	assert.Equal(t, "2025-04-15", summary.Metrics.LastPaymentDate)
	require.Len(t, summary.QuarterlySummaries, 1)
	assert.Equal(t, 2025, summary.QuarterlySummaries[0].Year)
	assert.Equal(t, 1, summary.QuarterlySummaries[0].Quarter)
}

func TestGetAvailablePeriods_MostRecentFirst(t *testing.T) {
	// GIVEN a quarterly contract starting 2024-01-01
	router, store := newTestAPI(t)
	_, contractID := seedQuarterlyClient(t, store)

	// WHEN listing selectable periods
	rec := doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/contracts/%d/periods", contractID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	options := decodeInto[AvailablePeriodsDTO](t, rec)

	// THEN the oldest option is Q1 2024 and ordering is newest first
	require.NotEmpty(t, options.Periods)
	last := options.Periods[len(options.Periods)-1]
	assert.Equal(t, "Q1 2024", last.Label)
	assert.Equal(t, "1-2024", last.Value)
}

func TestGetAvailablePeriods_UnknownContract_IsEmpty(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := doRequest(t, router, http.MethodGet, "/api/contracts/9999/periods", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, decodeInto[AvailablePeriodsDTO](t, rec).Periods)
}

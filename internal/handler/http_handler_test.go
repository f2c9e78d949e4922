package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kyungseok/course-settlement-go/common/idempotency"
	"github.com/kyungseok/course-settlement-go/common/logger"
	"github.com/kyungseok/course-settlement-go/common/retry"
	"github.com/kyungseok/course-settlement-go/internal/domain"
	"github.com/kyungseok/course-settlement-go/internal/repository"
	"github.com/kyungseok/course-settlement-go/internal/service"
	"github.com/kyungseok/course-settlement-go/internal/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestMux(t *testing.T) (*http.ServeMux, *repository.MemoryStore) {
	t.Helper()

	store := repository.NewMemoryStore()
	store.SeedUser(&domain.User{ID: "u1", Name: "Kim", Email: "kim@example.com"})
	store.SeedCourse(&domain.Course{ID: "c1", Title: "Go Basics", InstructorID: "i1", Price: 5000})

	log := logger.NewTestLogger()
	ledger := service.NewEnrollmentLedger(store, log)
	revenue := service.NewRevenueAccumulator(store, log)
	settlements := service.NewSettlementService(store, ledger, revenue, testSecret, retry.DefaultConfig(), log)
	gate := service.NewAccessGate(ledger, store, log)

	h := NewHTTPHandler(settlements, ledger, revenue, gate, idempotency.NewMemoryStore(), log)
	mux := http.NewServeMux()
	h.Register(mux)
	return mux, store
}

func settleBody(orderID, paymentID, sig string) []byte {
	body, _ := json.Marshal(SettleRequest{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: sig,
		UserID:    "u1",
		CourseID:  "c1",
		Amount:    5000,
	})
	return body
}

func doRequest(mux *http.ServeMux, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSettleEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)

	sig := signature.Sign("order_1", "pay_1", testSecret)
	rec := doRequest(mux, http.MethodPost, "/settlements", settleBody("order_1", "pay_1", sig))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VERIFIED", resp.Status)
	assert.Equal(t, "pay_1", resp.ExternalPaymentID)
	assert.Equal(t, int64(5000), resp.Amount)
}

func TestSettleEndpoint_DuplicateCallback(t *testing.T) {
	mux, _ := newTestMux(t)

	sig := signature.Sign("order_1", "pay_1", testSecret)
	body := settleBody("order_1", "pay_1", sig)

	first := doRequest(mux, http.MethodPost, "/settlements", body)
	require.Equal(t, http.StatusOK, first.Code)

	// 재전송: 캐시 경로든 DB 경로든 기존 기록이 그대로 돌아온다
	second := doRequest(mux, http.MethodPost, "/settlements", body)
	require.Equal(t, http.StatusOK, second.Code)

	var firstResp, secondResp PaymentResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	assert.Equal(t, firstResp.PaymentID, secondResp.PaymentID)

	rec := doRequest(mux, http.MethodGet, "/courses/c1/revenue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalRevenue":5000`)
}

func TestSettleEndpoint_InvalidSignature(t *testing.T) {
	mux, _ := newTestMux(t)

	sig := signature.Sign("order_1", "pay_1", "wrong-secret")
	rec := doRequest(mux, http.MethodPost, "/settlements", settleBody("order_1", "pay_1", sig))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "FAILED", resp.Status)

	// 수익은 변하지 않는다
	revRec := doRequest(mux, http.MethodGet, "/courses/c1/revenue", nil)
	assert.Contains(t, revRec.Body.String(), `"totalRevenue":0`)
}

func TestSettleEndpoint_UnknownCourse(t *testing.T) {
	mux, _ := newTestMux(t)

	body, _ := json.Marshal(SettleRequest{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: signature.Sign("order_1", "pay_1", testSecret),
		UserID:    "u1",
		CourseID:  "ghost",
		Amount:    5000,
	})
	rec := doRequest(mux, http.MethodPost, "/settlements", body)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "UNKNOWN_COURSE", resp.Code)
}

func TestSettleEndpoint_BadBody(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodPost, "/settlements", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnrollmentEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodGet, "/enrollments?userId=u1&courseId=c1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enrolled":false`)

	sig := signature.Sign("order_1", "pay_1", testSecret)
	doRequest(mux, http.MethodPost, "/settlements", settleBody("order_1", "pay_1", sig))

	rec = doRequest(mux, http.MethodGet, "/enrollments?userId=u1&courseId=c1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enrolled":true`)
}

func TestContentEndpoint_Gate(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodGet, "/courses/c1/content?userId=u1", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not enrolled")

	sig := signature.Sign("order_1", "pay_1", testSecret)
	doRequest(mux, http.MethodPost, "/settlements", settleBody("order_1", "pay_1", sig))

	rec = doRequest(mux, http.MethodGet, "/courses/c1/content?userId=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"allowed":true`)
}

func TestPaymentHistoryEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)

	for i := 1; i <= 3; i++ {
		orderID := fmt.Sprintf("order_%d", i)
		paymentID := fmt.Sprintf("pay_%d", i)
		sig := signature.Sign(orderID, paymentID, testSecret)
		rec := doRequest(mux, http.MethodPost, "/settlements", settleBody(orderID, paymentID, sig))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(mux, http.MethodGet, "/users/u1/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []PaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 3)

	rec = doRequest(mux, http.MethodGet, "/users/u1/payments?limit=2", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)

	rec = doRequest(mux, http.MethodGet, "/users/u1/payments?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

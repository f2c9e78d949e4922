package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/kyungseok/course-settlement-go/common/errors"
	"github.com/kyungseok/course-settlement-go/common/idempotency"
	"github.com/kyungseok/course-settlement-go/internal/domain"
	"github.com/kyungseok/course-settlement-go/internal/service"
	"go.uber.org/zap"
)

// idempotencyTTL 중복 콜백 캐시 유지 기간
const idempotencyTTL = 24 * time.Hour

// HTTPHandler HTTP 핸들러
type HTTPHandler struct {
	settlements service.SettlementService
	ledger      *service.EnrollmentLedger
	revenue     *service.RevenueAccumulator
	gate        *service.AccessGate
	idemStore   idempotency.Store
	logger      *zap.Logger
}

// NewHTTPHandler HTTP 핸들러 생성
func NewHTTPHandler(
	settlements service.SettlementService,
	ledger *service.EnrollmentLedger,
	revenue *service.RevenueAccumulator,
	gate *service.AccessGate,
	idemStore idempotency.Store,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		settlements: settlements,
		ledger:      ledger,
		revenue:     revenue,
		gate:        gate,
		idemStore:   idemStore,
		logger:      logger,
	}
}

// Register 라우트 등록
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /settlements", h.Settle)
	mux.HandleFunc("GET /courses/{courseID}/revenue", h.GetRevenue)
	mux.HandleFunc("GET /courses/{courseID}/content", h.GetContent)
	mux.HandleFunc("GET /enrollments", h.CheckEnrollment)
	mux.HandleFunc("GET /users/{userID}/payments", h.GetPaymentHistory)
	mux.HandleFunc("GET /health", h.HealthCheck)
}

// SettleRequest 정산 요청 (게이트웨이 콜백)
type SettleRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
	UserID    string `json:"userId"`
	CourseID  string `json:"courseId"`
	Amount    int64  `json:"amount"`
}

// PaymentResponse 결제 기록 응답
type PaymentResponse struct {
	PaymentID         int64  `json:"paymentId"`
	ExternalOrderID   string `json:"externalOrderId"`
	ExternalPaymentID string `json:"externalPaymentId"`
	UserID            string `json:"userId"`
	CourseID          string `json:"courseId"`
	Amount            int64  `json:"amount"`
	Status            string `json:"status"`
	Reason            string `json:"reason,omitempty"`
	CreatedAt         string `json:"createdAt"`
}

// ErrorResponse 에러 응답
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Settle 게이트웨이 콜백 정산 API
func (h *HTTPHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", string(apperrors.ErrCodeInvalidRequest))
		return
	}

	// 캐시 히트는 DB를 거치지 않는 빠른 중복 처리 경로 (원본은 어디까지나 DB)
	if seen, _ := h.idemStore.Seen(r.Context(), req.PaymentID); seen {
		if record, err := h.settlements.GetPayment(r.Context(), req.PaymentID); err == nil {
			h.logger.Info("duplicate callback short-circuited",
				zap.String("externalPaymentId", req.PaymentID))
			h.respondJSON(w, http.StatusOK, toPaymentResponse(record))
			return
		}
	}

	record, err := h.settlements.Settle(r.Context(), service.SettleCommand{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		UserID:    req.UserID,
		CourseID:  req.CourseID,
		Amount:    req.Amount,
	})

	if err != nil {
		code := apperrors.CodeOf(err)
		if code == apperrors.ErrCodeSignatureInvalid && record != nil {
			// 기록은 FAILED로 종결됨: 거절이지 장애가 아니다
			h.respondJSON(w, http.StatusUnprocessableEntity, toPaymentResponse(record))
			return
		}
		h.logger.Error("settlement failed", zap.Error(err))
		h.respondError(w, statusForCode(code), err.Error(), string(code))
		return
	}

	if _, err := h.idemStore.Mark(r.Context(), req.PaymentID, idempotencyTTL); err != nil {
		h.logger.Warn("failed to mark idempotency key", zap.Error(err))
	}

	h.respondJSON(w, http.StatusOK, toPaymentResponse(record))
}

// GetRevenue 강의 수익 조회 API
func (h *HTTPHandler) GetRevenue(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("courseID")

	total, err := h.revenue.Total(r.Context(), courseID)
	if err != nil {
		h.logger.Error("failed to get revenue", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, err.Error(), string(apperrors.CodeOf(err)))
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"courseId":     courseID,
		"totalRevenue": total,
	})
}

// CheckEnrollment 수강 등록 여부 조회 API
func (h *HTTPHandler) CheckEnrollment(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	courseID := r.URL.Query().Get("courseId")
	if userID == "" || courseID == "" {
		h.respondError(w, http.StatusBadRequest, "userId and courseId are required", string(apperrors.ErrCodeInvalidRequest))
		return
	}

	enrolled, err := h.ledger.IsEnrolled(r.Context(), userID, courseID)
	if err != nil {
		h.logger.Error("failed to check enrollment", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, err.Error(), string(apperrors.CodeOf(err)))
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"userId":   userID,
		"courseId": courseID,
		"enrolled": enrolled,
	})
}

// GetContent 강의 콘텐츠 조회 API (접근 제어 게이트 통과 필요)
func (h *HTTPHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("courseID")
	userID := r.URL.Query().Get("userId")

	decision, err := h.gate.Authorize(r.Context(), userID, courseID)
	if err != nil {
		h.logger.Error("failed to authorize", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, err.Error(), string(apperrors.CodeOf(err)))
		return
	}

	if !decision.Allowed {
		h.respondJSON(w, http.StatusForbidden, map[string]interface{}{
			"allowed": false,
			"reason":  decision.Reason,
		})
		return
	}

	// 실제 콘텐츠 전달은 외부 콘텐츠 스토어 소관
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"allowed":  true,
		"courseId": courseID,
	})
}

// GetPaymentHistory 사용자 결제 이력 조회 API
func (h *HTTPHandler) GetPaymentHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "invalid limit", string(apperrors.ErrCodeInvalidRequest))
			return
		}
		limit = parsed
	}

	payments, err := h.settlements.GetPaymentHistory(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to get payment history", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, err.Error(), string(apperrors.CodeOf(err)))
		return
	}

	responses := make([]PaymentResponse, 0, len(payments))
	for _, payment := range payments {
		responses = append(responses, toPaymentResponse(payment))
	}
	h.respondJSON(w, http.StatusOK, responses)
}

// HealthCheck 헬스 체크 API
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func toPaymentResponse(record *domain.PaymentRecord) PaymentResponse {
	return PaymentResponse{
		PaymentID:         record.ID,
		ExternalOrderID:   record.ExternalOrderID,
		ExternalPaymentID: record.ExternalPaymentID,
		UserID:            record.UserID,
		CourseID:          record.CourseID,
		Amount:            record.Amount,
		Status:            string(record.Status),
		Reason:            record.Reason,
		CreatedAt:         record.CreatedAt.Format(time.RFC3339),
	}
}

func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInvalidRequest, apperrors.ErrCodeInvalidAmount:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnknownCourse, apperrors.ErrCodeUnknownUser, apperrors.ErrCodePaymentNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeSignatureInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, status int, message string, code string) {
	h.respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	model "github.com/glkeru/loyalty/userpoints/internal/models"
	services "github.com/glkeru/loyalty/userpoints/internal/services"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type PointsHandler struct {
	router  *mux.Router
	service *services.PointsService
	logger  *zap.Logger
}

type PointBody struct {
	Amount *int64 `json:"amount"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewHandler(service *services.PointsService, logger *zap.Logger) *PointsHandler {
	router := mux.NewRouter()
	handler := &PointsHandler{router, service, logger}
	router.Use(MiddlewareLog(logger))
	router.HandleFunc("/health", handler.HealthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/point/{id}", handler.PointHandler).Methods(http.MethodGet)
	router.HandleFunc("/point/{id}/histories", handler.HistoryHandler).Methods(http.MethodGet)
	router.HandleFunc("/point/{id}/charge", handler.ChargeHandler).Methods(http.MethodPatch)
	router.HandleFunc("/point/{id}/use", handler.UseHandler).Methods(http.MethodPatch)

	return handler
}

func (h *PointsHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.router.ServeHTTP(w, req)
}

func (h *PointsHandler) Log(msg string, service string, err error) {
	h.logger.Error(msg,
		zap.String("service", service),
		zap.Error(err),
	)
}

func (h *PointsHandler) HealthHandler(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Баланс
func (h *PointsHandler) PointHandler(w http.ResponseWriter, req *http.Request) {
	balance, err := h.service.GetPoint(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		h.respondError(w, "PointHandler", err)
		return
	}
	h.respondJSON(w, http.StatusOK, balance)
}

// История
func (h *PointsHandler) HistoryHandler(w http.ResponseWriter, req *http.Request) {
	history, err := h.service.GetHistory(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		h.respondError(w, "HistoryHandler", err)
		return
	}
	h.respondJSON(w, http.StatusOK, history)
}

// Начисление
func (h *PointsHandler) ChargeHandler(w http.ResponseWriter, req *http.Request) {
	amount, err := readAmount(req)
	if err != nil {
		h.respondError(w, "ChargeHandler", err)
		return
	}
	balance, err := h.service.Charge(req.Context(), mux.Vars(req)["id"], amount)
	if err != nil {
		h.respondError(w, "ChargeHandler", err)
		return
	}
	h.respondJSON(w, http.StatusOK, balance)
}

// Списание
func (h *PointsHandler) UseHandler(w http.ResponseWriter, req *http.Request) {
	amount, err := readAmount(req)
	if err != nil {
		h.respondError(w, "UseHandler", err)
		return
	}
	balance, err := h.service.Use(req.Context(), mux.Vars(req)["id"], amount)
	if err != nil {
		h.respondError(w, "UseHandler", err)
		return
	}
	h.respondJSON(w, http.StatusOK, balance)
}

var errBadBody = errors.New("body is not correct")

func readAmount(req *http.Request) (int64, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return 0, errBadBody
	}
	defer req.Body.Close()
	point := &PointBody{}
	if err := json.Unmarshal(body, point); err != nil || point.Amount == nil {
		return 0, errBadBody
	}
	return *point.Amount, nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadBody),
		errors.Is(err, model.ErrInvalidUserID),
		errors.Is(err, model.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *PointsHandler) respondError(w http.ResponseWriter, service string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.Log("Request failed", service, err)
	}
	h.respondJSON(w, status, ErrorResponse{err.Error()})
}

func (h *PointsHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	j, err := json.Marshal(data)
	if err != nil {
		h.Log("Marshal", "respondJSON", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(j)
}

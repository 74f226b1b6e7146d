package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/auth"
	"github.com/rl1809/bloodbank/internal/core/domain"
	"github.com/rl1809/bloodbank/internal/core/service"
)

const dateLayout = "2006-01-02"

type HTTPHandler struct {
	requests    *service.RequestService
	fulfillment *service.FulfillmentService
	inventory   *service.InventoryService
	donors      *service.DonorService
	auth        *auth.Service
	validate    *validator.Validate
	logger      *zap.Logger

	metricsPath string
}

type Services struct {
	Requests    *service.RequestService
	Fulfillment *service.FulfillmentService
	Inventory   *service.InventoryService
	Donors      *service.DonorService
	Auth        *auth.Service
}

func NewHTTPHandler(s Services, logger *zap.Logger) *HTTPHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &HTTPHandler{
		requests:    s.Requests,
		fulfillment: s.Fulfillment,
		inventory:   s.Inventory,
		donors:      s.Donors,
		auth:        s.Auth,
		validate:    v,
		logger:      logger,
		metricsPath: "/metrics",
	}
}

// WithMetrics exposes the Prometheus registry on path. An empty path
// disables the endpoint.
func (h *HTTPHandler) WithMetrics(path string) *HTTPHandler {
	h.metricsPath = path
	return h
}

func (h *HTTPHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)
	if h.metricsPath != "" {
		r.Handle(h.metricsPath, promhttp.Handler())
	}

	r.Post("/api/register/", h.register)
	r.Post("/api/token/", h.token)
	r.Post("/api/token/refresh/", h.refresh)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Post("/api/requests/", h.createRequest)
		r.Get("/api/requests/", h.listOwnRequests)

		r.Get("/api/admin/requests/", h.listAllRequests)
		r.Get("/api/admin/requests/{id}/", h.getRequest)
		r.Put("/api/admin/requests/{id}/", h.updateRequestStatus)

		r.Post("/api/inventory/", h.createInventory)
		r.Get("/api/inventory/", h.listInventory)
		r.Get("/api/inventory/{id}/", h.getInventory)
		r.Put("/api/inventory/{id}/", h.updateInventory)

		r.Post("/api/donors/", h.createDonor)
		r.Get("/api/donors/", h.listDonors)
		r.Get("/api/donors/{id}/", h.getDonor)
		r.Put("/api/donors/{id}/", h.updateDonor)
		r.Delete("/api/donors/{id}/", h.deleteDonor)
	})

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Auth

type registerPayload struct {
	Username string `json:"username" validate:"required,max=150"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required"`
}

type tokenPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshPayload struct {
	Refresh string `json:"refresh" validate:"required"`
}

func (h *HTTPHandler) register(w http.ResponseWriter, r *http.Request) {
	var p registerPayload
	if !h.bind(w, r, &p) {
		return
	}

	user, err := h.auth.Register(r.Context(), p.Username, p.Email, p.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *HTTPHandler) token(w http.ResponseWriter, r *http.Request) {
	var p tokenPayload
	if !h.bind(w, r, &p) {
		return
	}

	pair, err := h.auth.Login(r.Context(), p.Username, p.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *HTTPHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var p refreshPayload
	if !h.bind(w, r, &p) {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), p.Refresh)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Requests

type createRequestPayload struct {
	BloodType      domain.BloodType `json:"blood_type" validate:"required"`
	UnitsRequested int              `json:"units_requested" validate:"required,gt=0"`
}

type updateStatusPayload struct {
	Status domain.RequestStatus `json:"status" validate:"required"`
}

func (h *HTTPHandler) createRequest(w http.ResponseWriter, r *http.Request) {
	var p createRequestPayload
	if !h.bind(w, r, &p) {
		return
	}

	req, err := h.requests.Create(r.Context(), callerFrom(r.Context()), p.BloodType, p.UnitsRequested, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *HTTPHandler) listOwnRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.requests.ListOwn(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *HTTPHandler) listAllRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.RequestFilter{
		BloodType: domain.BloodType(q.Get("blood_type")),
		Status:    domain.RequestStatus(q.Get("status")),
	}

	reqs, err := h.requests.ListAll(r.Context(), callerFrom(r.Context()), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *HTTPHandler) getRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	req, err := h.requests.Get(r.Context(), callerFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *HTTPHandler) updateRequestStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p updateStatusPayload
	if !h.bind(w, r, &p) {
		return
	}

	req, err := h.fulfillment.UpdateStatus(r.Context(), callerFrom(r.Context()), id, p.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Inventory

type inventoryPayload struct {
	BloodType      domain.BloodType `json:"blood_type" validate:"required"`
	UnitsAvailable *int             `json:"units_available" validate:"required,gte=0"`
}

func (h *HTTPHandler) createInventory(w http.ResponseWriter, r *http.Request) {
	var p inventoryPayload
	if !h.bind(w, r, &p) {
		return
	}

	rec, err := h.inventory.Create(r.Context(), callerFrom(r.Context()), p.BloodType, *p.UnitsAvailable)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *HTTPHandler) listInventory(w http.ResponseWriter, r *http.Request) {
	recs, err := h.inventory.List(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *HTTPHandler) getInventory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.inventory.Get(r.Context(), callerFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *HTTPHandler) updateInventory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p inventoryPayload
	if !h.bind(w, r, &p) {
		return
	}

	rec, err := h.inventory.Update(r.Context(), callerFrom(r.Context()), id, p.BloodType, *p.UnitsAvailable)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Donors

type donorPayload struct {
	Name             string           `json:"name" validate:"required,max=100"`
	BloodType        domain.BloodType `json:"blood_type" validate:"required"`
	ContactInfo      string           `json:"contact_info" validate:"required"`
	LastDonationDate string           `json:"last_donation_date" validate:"omitempty,datetime=2006-01-02"`
}

func (p donorPayload) donor(id int64) domain.Donor {
	d := domain.Donor{
		ID:          id,
		Name:        p.Name,
		BloodType:   p.BloodType,
		ContactInfo: p.ContactInfo,
	}
	if day, err := time.Parse(dateLayout, p.LastDonationDate); err == nil {
		d.LastDonationDate = &day
	}
	return d
}

type donorResponse struct {
	ID               int64            `json:"id"`
	Name             string           `json:"name"`
	BloodType        domain.BloodType `json:"blood_type"`
	ContactInfo      string           `json:"contact_info"`
	LastDonationDate *string          `json:"last_donation_date"`
}

func newDonorResponse(d domain.Donor) donorResponse {
	resp := donorResponse{
		ID:          d.ID,
		Name:        d.Name,
		BloodType:   d.BloodType,
		ContactInfo: d.ContactInfo,
	}
	if d.LastDonationDate != nil {
		day := d.LastDonationDate.Format(dateLayout)
		resp.LastDonationDate = &day
	}
	return resp
}

func (h *HTTPHandler) createDonor(w http.ResponseWriter, r *http.Request) {
	var p donorPayload
	if !h.bind(w, r, &p) {
		return
	}

	donor, err := h.donors.Create(r.Context(), callerFrom(r.Context()), p.donor(0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newDonorResponse(donor))
}

func (h *HTTPHandler) listDonors(w http.ResponseWriter, r *http.Request) {
	donors, err := h.donors.List(r.Context(), callerFrom(r.Context()), r.URL.Query().Get("search"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]donorResponse, len(donors))
	for i, d := range donors {
		resp[i] = newDonorResponse(d)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) getDonor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	donor, err := h.donors.Get(r.Context(), callerFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDonorResponse(donor))
}

func (h *HTTPHandler) updateDonor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p donorPayload
	if !h.bind(w, r, &p) {
		return
	}

	donor, err := h.donors.Update(r.Context(), callerFrom(r.Context()), p.donor(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDonorResponse(donor))
}

func (h *HTTPHandler) deleteDonor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.donors.Delete(r.Context(), callerFrom(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helpers

// bind decodes and validates a JSON body, writing a 400 on failure.
func (h *HTTPHandler) bind(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}

	if err := h.validate.Struct(dest); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		if fe.Param() != "" {
			msgs[i] = fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		} else {
			msgs[i] = fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
		}
	}
	return strings.Join(msgs, "; ")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return 0, false
	}
	return id, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrInsufficientInventory),
		errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

package nonstd

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/motor-valuation/internal/common"
)

// Handler exposes the valuation endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service   *Service
	Validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validator
	if v == nil {
		v = NewValidator()
	}
	return &Handler{service: cfg.Service, validate: v}
}

// NewValidator returns a validator reporting fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Routes mounts the handlers on r.
func (h *Handler) Routes(r chi.Router, write func(chi.Router)) {
	r.Get("/brands/{brand}/parameters", h.Parameters)
	r.Group(func(g chi.Router) {
		if write != nil {
			write(g)
		}
		g.Post("/valuations/preview", h.Preview)
		g.Post("/nonstandard-items", h.Create)
		g.Post("/nonstandard-items/{id}/discount", h.UpdateDiscount)
	})
	r.Get("/nonstandard-items/{id}", h.Get)
	r.Get("/nonstandard-items/{id}/price-logs", h.PriceLogs)
}

type selectionRequest struct {
	Code  string `json:"code" validate:"required"`
	Value string `json:"value" validate:"required"`
}

type draftRequest struct {
	DraftKey           string             `json:"draft_key" validate:"omitempty,max=128"`
	BaseItem           string             `json:"base_item" validate:"required"`
	Brand              string             `json:"brand" validate:"required"`
	Parameters         []selectionRequest `json:"parameters" validate:"dive"`
	ApplyDiscountAfter string             `json:"apply_discount_after"`
	DiscountPercentage decimal.Decimal    `json:"discount_percentage"`
	ReferenceDoctype   string             `json:"reference_doctype" validate:"required_with=ReferenceName"`
	ReferenceName      string             `json:"reference_name" validate:"required_with=ReferenceDoctype"`
}

func (r draftRequest) draft() Draft {
	choices := make([]Choice, 0, len(r.Parameters))
	for _, p := range r.Parameters {
		choices = append(choices, Choice{Code: p.Code, Value: p.Value})
	}
	return Draft{
		Key:                r.DraftKey,
		BaseItem:           r.BaseItem,
		Brand:              r.Brand,
		Choices:            choices,
		ApplyDiscountAfter: r.ApplyDiscountAfter,
		DiscountPercentage: r.DiscountPercentage,
		ReferenceDoctype:   r.ReferenceDoctype,
		ReferenceName:      r.ReferenceName,
	}
}

type discountRequest struct {
	ApplyDiscountAfter string          `json:"apply_discount_after"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	ReferenceDoctype   string          `json:"reference_doctype" validate:"required_with=ReferenceName"`
	ReferenceName      string          `json:"reference_name" validate:"required_with=ReferenceDoctype"`
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return common.Validation("invalid request body", nil)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]fieldError, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, fieldError{Field: fe.Namespace(), Rule: fe.Tag()})
			}
			return common.Validation("request validation failed", details)
		}
		return common.Validation("request validation failed", nil)
	}
	return nil
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "valuation service not configured", nil)
		return false
	}
	return true
}

// Parameters handles GET /api/v1/brands/{brand}/parameters?item=.
func (h *Handler) Parameters(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	view, err := h.service.Catalog(r.Context(), chi.URLParam(r, "brand"), r.URL.Query().Get("item"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Preview handles POST /api/v1/valuations/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req draftRequest
	if err := h.decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	q, err := h.service.Preview(r.Context(), req.draft())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
}

// Create handles POST /api/v1/nonstandard-items.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req draftRequest
	if err := h.decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), req.draft())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/nonstandard-items/"+created.Record.ID)
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Get handles GET /api/v1/nonstandard-items/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// UpdateDiscount handles POST /api/v1/nonstandard-items/{id}/discount.
func (h *Handler) UpdateDiscount(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req discountRequest
	if err := h.decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.service.UpdateDiscount(r.Context(), chi.URLParam(r, "id"), DiscountUpdate{
		ApplyDiscountAfter: req.ApplyDiscountAfter,
		DiscountPercentage: req.DiscountPercentage,
		ReferenceDoctype:   req.ReferenceDoctype,
		ReferenceName:      req.ReferenceName,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// PriceLogs handles GET /api/v1/nonstandard-items/{id}/price-logs.
func (h *Handler) PriceLogs(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	page := common.ParsePagination(r, 50)
	logs, err := h.service.PriceLogs(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": logs, "pagination": page})
}

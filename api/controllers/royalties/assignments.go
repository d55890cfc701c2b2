package royalties

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/threadloom/royaltyhub-backend/api/responses"
	"github.com/threadloom/royaltyhub-backend/api/validators"
	"github.com/threadloom/royaltyhub-backend/internal/assignments"
	pkgerrors "github.com/threadloom/royaltyhub-backend/pkg/errors"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
)

type createAssignmentRequest struct {
	Shop          string     `json:"shop" validate:"required"`
	ProductID     string     `json:"productId" validate:"required"`
	Title         string     `json:"title" validate:"required"`
	Image         *string    `json:"image,omitempty"`
	DesignerID    string     `json:"designerId" validate:"required"`
	Percentage    string     `json:"percentage" validate:"required"`
	Expiry        *time.Time `json:"expiry,omitempty"`
	Price         string     `json:"price,omitempty"`
	PriceCurrency string     `json:"priceCurrency,omitempty"`
	StoreCurrency string     `json:"storeCurrency,omitempty"`
}

// CreateAssignment assigns a designer to a product.
func CreateAssignment(svc *assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		var payload createAssignmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		percentage, err := decimal.NewFromString(payload.Percentage)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid percentage"))
			return
		}

		price := decimal.Zero
		if payload.Price != "" {
			price, err = decimal.NewFromString(payload.Price)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price"))
				return
			}
		}

		assignment, err := svc.Create(ctx, assignments.CreateParams{
			Shop:          payload.Shop,
			ProductID:     payload.ProductID,
			Title:         validators.SanitizeString(payload.Title, 255),
			Image:         payload.Image,
			DesignerID:    payload.DesignerID,
			Percentage:    percentage,
			Expiry:        payload.Expiry,
			Price:         price,
			PriceCurrency: payload.PriceCurrency,
			StoreCurrency: payload.StoreCurrency,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, assignment)
	}
}

type updateAssignmentRequest struct {
	Title       *string    `json:"title,omitempty"`
	Image       *string    `json:"image,omitempty"`
	Percentage  *string    `json:"percentage,omitempty"`
	Expiry      *time.Time `json:"expiry,omitempty"`
	ClearExpiry bool       `json:"clearExpiry,omitempty"`
}

// UpdateAssignment edits an assignment's percentage, expiry, or metadata.
func UpdateAssignment(svc *assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid assignment id"))
			return
		}

		var payload updateAssignmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if payload.Title != nil {
			clean := validators.SanitizeString(*payload.Title, 255)
			payload.Title = &clean
		}
		params := assignments.UpdateParams{
			Title:       payload.Title,
			Image:       payload.Image,
			Expiry:      payload.Expiry,
			ClearExpiry: payload.ClearExpiry,
		}
		if payload.Percentage != nil {
			percentage, err := decimal.NewFromString(*payload.Percentage)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid percentage"))
				return
			}
			params.Percentage = &percentage
		}

		assignment, err := svc.Update(ctx, id, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, assignment)
	}
}

// ToggleAssignment archives or restores an assignment.
func ToggleAssignment(svc *assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid assignment id"))
			return
		}

		assignment, err := svc.Toggle(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, assignment)
	}
}

// ListAssignments returns the shop's assignments.
func ListAssignments(svc *assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		shop := r.URL.Query().Get("shop")
		includeArchived := r.URL.Query().Get("includeArchived") == "true"

		results, err := svc.List(ctx, shop, includeArchived)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, results)
	}
}

package activity

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/pkg/apperr"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleProfessional, auth.RoleAssistant))
	read.GET("/activity", h.ListActivity)
}

// ListActivity supports ?type=, ?patient_id= and ?since= (RFC 3339).
func (h *Handler) ListActivity(c echo.Context) error {
	professionalID, err := auth.ProfessionalID(c)
	if err != nil {
		return err
	}

	f := Filter{Type: Type(c.QueryParam("type"))}
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if raw := c.QueryParam("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid since, expected RFC 3339")
		}
		f.Since = &since
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRecent(c.Request().Context(), professionalID, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

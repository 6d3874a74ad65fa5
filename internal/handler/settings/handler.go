package settings

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/middleware"
	"github.com/jwalitptl/notify-digest/internal/service/settings"
	"github.com/jwalitptl/notify-digest/pkg/errors"
	"github.com/jwalitptl/notify-digest/pkg/httputil"
	"github.com/jwalitptl/notify-digest/pkg/validator"
)

type UpdateSettingsRequest struct {
	Tier string `json:"tier" validate:"required,tier"`
}

type Handler struct {
	service   settings.Service
	validator validator.Validator
}

func NewHandler(service settings.Service, v validator.Validator) *Handler {
	return &Handler{service: service, validator: v}
}

// RegisterRoutes expects an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/:id/settings", h.GetSettings)
		users.PUT("/:id/settings", h.UpdateSettings)
	}
}

func (h *Handler) GetSettings(c *gin.Context) {
	id, ok := h.authorizedUser(c)
	if !ok {
		return
	}

	s, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, s)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	id, ok := h.authorizedUser(c)
	if !ok {
		return
	}

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid request body", err))
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	s, err := h.service.SetTier(c.Request.Context(), id, req.Tier)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, s)
}

// authorizedUser parses :id and lets through admins and the user themselves.
func (h *Handler) authorizedUser(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid user ID", err))
		return uuid.Nil, false
	}

	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
		return uuid.Nil, false
	}
	if !claims.IsAdmin() && claims.Subject != id.String() {
		httputil.RespondWithError(c, errors.Forbidden("cannot access another user's settings"))
		return uuid.Nil, false
	}
	return id, true
}

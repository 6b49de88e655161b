package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ticketconcierge/internal/shared/utils/response"
)

// Controller exposes the read-only catalog browsing surface supplemental to
// the chat flow (SPEC_FULL §3): GET /categories, /events, /events/:id.
type Controller interface {
	ListCategories(c *gin.Context)
	ListEvents(c *gin.Context)
	GetEvent(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) ListCategories(c *gin.Context) {
	response.RespondJSON(c, "success", http.StatusOK, "categories retrieved", ctrl.service.ListCategories(), nil)
}

func (ctrl *controller) ListEvents(c *gin.Context) {
	var category *Category
	if raw := c.Query("category"); raw != "" {
		cat := Category(raw)
		category = &cat
	}

	events, err := ctrl.service.ListEvents(category)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, err.Error(), nil, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "events retrieved", events, nil)
}

func (ctrl *controller) GetEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "invalid event id", nil, err.Error())
		return
	}

	event, err := ctrl.service.GetEvent(id)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusNotFound, err.Error(), nil, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "event retrieved", event, nil)
}

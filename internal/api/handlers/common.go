package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openprep/openprep/internal/models"
	"github.com/openprep/openprep/internal/utils"
)

// OwnerHeader carries the anonymous owner id issued by Start.
const OwnerHeader = "X-Owner-Id"

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	_ = c.Error(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

func requireUserID(c *gin.Context) (string, bool) {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

// currentOwner resolves the caller. Authenticated users come from the JWT
// middleware; anonymous callers may echo back an id previously issued to them.
// Only anon- ids are honoured from the header.
func currentOwner(c *gin.Context) models.Owner {
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(string); ok && id != "" {
			o := models.Owner{ID: id, Role: models.RoleUser, Plan: models.PlanFree}
			if r, ok := c.Get("role"); ok {
				if s, _ := r.(string); s != "" {
					o.Role = models.UserRole(s)
				}
			}
			if p, ok := c.Get("plan"); ok {
				if s, _ := p.(string); s != "" {
					o.Plan = models.Plan(s)
				}
			}
			return o
		}
	}

	o := models.Owner{Anonymous: true, Role: models.RoleUser, Plan: models.PlanGuest}
	if id := strings.TrimSpace(c.GetHeader(OwnerHeader)); strings.HasPrefix(id, "anon-") {
		o.ID = id
		c.Set("owner_id", id)
	}
	return o
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openprep/openprep/internal/models"
	"github.com/openprep/openprep/internal/services"
	"github.com/openprep/openprep/internal/utils"
)

type ProfileHandler struct {
	svc services.ProfileService
}

func NewProfileHandler(svc services.ProfileService) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

func (h *ProfileHandler) Resume(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	p, err := h.svc.GetResume(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

type UpdateResumeRequest struct {
	Skills       []string `json:"skills" binding:"required"`
	Technologies []string `json:"technologies" binding:"required"`
}

func (h *ProfileHandler) UpdateResume(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req UpdateResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ProfileHandler.UpdateResume", "invalid request body", err))
		return
	}

	p := &models.ResumeProfile{
		UserID:       userID,
		Skills:       req.Skills,
		Technologies: req.Technologies,
	}
	if err := h.svc.SaveResume(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

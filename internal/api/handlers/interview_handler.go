package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openprep/openprep/internal/models"
	"github.com/openprep/openprep/internal/services"
	"github.com/openprep/openprep/internal/utils"
)

type InterviewHandler struct {
	svc     services.InterviewService
	reports services.ReportService
}

func NewInterviewHandler(svc services.InterviewService, reports services.ReportService) *InterviewHandler {
	return &InterviewHandler{svc: svc, reports: reports}
}

type StartInterviewRequest struct {
	Type           string                 `json:"type" binding:"required"`
	ResumeAnalysis *models.ResumeAnalysis `json:"resumeAnalysis"`
}

func (h *InterviewHandler) Start(c *gin.Context) {
	var req StartInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.Start", "invalid request body", err))
		return
	}

	owner := currentOwner(c)
	res, err := h.svc.Start(c.Request.Context(), owner, models.InterviewType(req.Type), req.ResumeAnalysis)
	if err != nil {
		writeError(c, err)
		return
	}

	if owner.Anonymous {
		c.Header(OwnerHeader, res.OwnerID)
	}
	c.Set("owner_id", res.OwnerID)
	c.JSON(http.StatusOK, res)
}

type SubmitAnswerRequest struct {
	SessionID     string `json:"sessionId" binding:"required"`
	QuestionIndex *int   `json:"questionIndex" binding:"required"`
	Answer        string `json:"answer"`
	TimeSpent     int    `json:"timeSpent"`
}

func (h *InterviewHandler) Answer(c *gin.Context) {
	const op = "InterviewHandler.Answer"

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}

	sess, err := h.svc.Get(c.Request.Context(), req.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !canAccess(currentOwner(c), sess) {
		writeError(c, utils.E(utils.CodeForbidden, op, "forbidden", nil))
		return
	}

	res, err := h.svc.SubmitAnswer(c.Request.Context(), req.SessionID, *req.QuestionIndex, req.Answer, req.TimeSpent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *InterviewHandler) Results(c *gin.Context) {
	sess, err := h.svc.FetchResults(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !canAccess(currentOwner(c), sess) {
		writeError(c, utils.E(utils.CodeForbidden, "InterviewHandler.Results", "forbidden", nil))
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *InterviewHandler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.History", "limit must be a positive integer", err))
			return
		}
		limit = n
	}

	rep, err := h.reports.Report(c.Request.Context(), currentOwner(c).ID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *InterviewHandler) Cleanup(c *gin.Context) {
	n, err := h.svc.Cleanup(c.Request.Context(), currentOwner(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affectedCount": n})
}

// AdminCleanup abandons another owner's in-progress sessions.
func (h *InterviewHandler) AdminCleanup(c *gin.Context) {
	n, err := h.svc.Cleanup(c.Request.Context(), c.Param("owner_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affectedCount": n})
}

// canAccess lets callers without any identity read by session id; anyone who
// presents one must own the session.
func canAccess(o models.Owner, s *models.InterviewSession) bool {
	if o.ID == "" {
		return true
	}
	return o.ID == s.OwnerID
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"

	"codequest/internal/api/middleware"
	"codequest/internal/app/service"
	"codequest/internal/common"
)

type SubmissionHandler struct {
	submissionService *service.SubmissionService
}

func NewSubmissionHandler(ss *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: ss}
}

func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Post("/", h.createSubmission)
	r.Get("/{submissionID}", h.getSubmission)
}

func (h *SubmissionHandler) createSubmission(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	var req service.CreateSubmissionRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}

	resp, err := h.submissionService.CreateSubmission(r.Context(), caller, req)
	if err != nil {
		logIfInternal(r, err)
		common.RespondWithDomainError(w, err)
		return
	}
	// grading continues in the background; clients poll the GET route
	common.RespondWithJSON(w, http.StatusAccepted, resp)
}

func (h *SubmissionHandler) getSubmission(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	details, err := h.submissionService.GetSubmission(r.Context(), caller, chi.URLParam(r, "submissionID"))
	if err != nil {
		logIfInternal(r, err)
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, details)
}

func logIfInternal(r *http.Request, err error) {
	if common.HTTPStatusFromError(err) >= http.StatusInternalServerError {
		httplog.LogEntry(r.Context()).Error("request failed", "error", err)
	}
}

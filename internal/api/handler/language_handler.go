package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"codequest/internal/app/service"
	"codequest/internal/common"
)

type LanguageHandler struct {
	submissionService *service.SubmissionService
}

func NewLanguageHandler(ss *service.SubmissionService) *LanguageHandler {
	return &LanguageHandler{submissionService: ss}
}

func (h *LanguageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listLanguages)
}

func (h *LanguageHandler) listLanguages(w http.ResponseWriter, _ *http.Request) {
	common.RespondWithJSON(w, http.StatusOK, h.submissionService.Languages())
}

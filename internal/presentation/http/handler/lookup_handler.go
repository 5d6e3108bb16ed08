package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/pharmadesk/internal/application/service"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/sangkips/pharmadesk/internal/presentation/http/dto/request"
	"github.com/sangkips/pharmadesk/internal/presentation/http/dto/response"
	"github.com/sangkips/pharmadesk/pkg/apperror"
)

// LookupHandler handles search and lookup session requests
type LookupHandler struct {
	lookupService *service.LookupService
}

// NewLookupHandler creates a new lookup handler
func NewLookupHandler(lookupService *service.LookupService) *LookupHandler {
	return &LookupHandler{lookupService: lookupService}
}

// Search runs a one-shot search for a kind
func (h *LookupHandler) Search(c *gin.Context) {
	kind, err := enum.ParseLookupKind(c.Param("kind"))
	if err != nil {
		response.Error(c, apperror.NewBadRequestError(err.Error()))
		return
	}

	var req request.SearchFilterRequest
	if !bindQuery(c, &req) {
		return
	}

	result, err := h.lookupService.Search(c.Request.Context(), kind, req.Query, pageParams(req.Page, req.PerPage))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithPagination(c, 200, "Search completed", result)
}

// Create opens a lookup session
func (h *LookupHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req request.CreateLookupRequest
	if !bindJSON(c, &req) {
		return
	}

	snap, err := h.lookupService.CreateSession(c.Request.Context(), userID, enum.LookupKind(req.Kind), time.Duration(req.DelayMS)*time.Millisecond)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, "Lookup opened", snap)
}

// Get returns the session's current state. Clients poll it while a search is
// loading.
func (h *LookupHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	snap, err := h.lookupService.GetSession(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Lookup retrieved", snap)
}

// Open opens the control, pre-filling the term with the selection
func (h *LookupHandler) Open(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	snap, err := h.lookupService.OpenSession(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Lookup opened", snap)
}

// Term records a keystroke
func (h *LookupHandler) Term(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req request.LookupTermRequest
	if !bindJSON(c, &req) {
		return
	}

	snap, err := h.lookupService.TypeTerm(c.Request.Context(), userID, id, req.Term)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Search term updated", snap)
}

// Select picks one of the current results
func (h *LookupHandler) Select(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req request.LookupSelectRequest
	if !bindJSON(c, &req) {
		return
	}

	snap, err := h.lookupService.SelectOption(c.Request.Context(), userID, id, req.ID.String())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Option selected", snap)
}

// Clear drops the selection
func (h *LookupHandler) Clear(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	snap, err := h.lookupService.ClearSelection(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Selection cleared", snap)
}

// Delete closes the session
func (h *LookupHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.lookupService.CloseSession(c.Request.Context(), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

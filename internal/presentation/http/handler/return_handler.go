package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sangkips/pharmadesk/internal/application/service"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/sangkips/pharmadesk/internal/presentation/http/dto/request"
	"github.com/sangkips/pharmadesk/internal/presentation/http/dto/response"
	"github.com/sangkips/pharmadesk/pkg/pagination"
)

// ReturnHandler handles return draft requests
type ReturnHandler struct {
	returnService *service.ReturnService
}

// NewReturnHandler creates a new return handler
func NewReturnHandler(returnService *service.ReturnService) *ReturnHandler {
	return &ReturnHandler{returnService: returnService}
}

// CreateDraft starts a purchase or sales return draft
func (h *ReturnHandler) CreateDraft(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req request.CreateDraftRequest
	if !bindJSON(c, &req) {
		return
	}

	draft, err := h.returnService.CreateDraft(c.Request.Context(), &service.CreateDraftInput{
		OwnerID:       userID,
		Flow:          enum.ReturnFlow(req.Flow),
		TransactionID: req.TransactionID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, "Return draft created", response.NewDraftResponse(draft))
}

// ListDrafts lists the caller's drafts, newest first
func (h *ReturnHandler) ListDrafts(c *gin.Context) {
	var req request.ReturnFilterRequest
	if !bindQuery(c, &req) {
		return
	}

	var flow *enum.ReturnFlow
	if req.Flow != "" {
		f := enum.ReturnFlow(req.Flow)
		flow = &f
	}

	result, err := h.returnService.ListDrafts(c.Request.Context(), flow, pageParams(req.Page, req.PerPage))
	if err != nil {
		response.Error(c, err)
		return
	}

	page := pagination.NewPaginatedResult(response.NewDraftListResponse(result.Items), result.Pagination)
	response.SuccessWithPagination(c, 200, "Return drafts retrieved", page)
}

// GetDraft returns a draft with its rows and totals
func (h *ReturnHandler) GetDraft(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	draft, err := h.returnService.GetDraft(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Return draft retrieved", response.NewDraftResponse(draft))
}

// SelectTransaction loads the purchase order or sales bill into the draft
func (h *ReturnHandler) SelectTransaction(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req request.SelectTransactionRequest
	if !bindJSON(c, &req) {
		return
	}

	draft, err := h.returnService.SelectTransaction(c.Request.Context(), id, req.TransactionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Transaction selected", response.NewDraftResponse(draft))
}

// ClearTransaction empties the draft
func (h *ReturnHandler) ClearTransaction(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	draft, err := h.returnService.ClearTransaction(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Transaction cleared", response.NewDraftResponse(draft))
}

// UpdateItem sets the quantity to return for one row. Out of range or
// malformed input is clamped, never rejected.
func (h *ReturnHandler) UpdateItem(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "item_id")
	if !ok {
		return
	}

	var req request.UpdateItemRequest
	if !bindJSON(c, &req) {
		return
	}

	draft, err := h.returnService.SetItemQuantity(c.Request.Context(), id, itemID, req.RawQuantity())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Quantity updated", response.NewDraftResponse(draft))
}

// UpdateDraft edits the reason and notes
func (h *ReturnHandler) UpdateDraft(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req request.UpdateDraftRequest
	if !bindJSON(c, &req) {
		return
	}

	draft, err := h.returnService.UpdateDetails(c.Request.Context(), id, req.Reason, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Return draft updated", response.NewDraftResponse(draft))
}

// Submit validates the draft and posts it to the pharmacy backend
func (h *ReturnHandler) Submit(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	result, err := h.returnService.Submit(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	data := response.SubmitResponse{
		Flow:              result.Flow,
		TransactionID:     result.TransactionID,
		TotalReturnAmount: result.TotalAmount.StringFixed(2),
		Draft:             response.NewDraftResponse(result.Draft),
	}
	if result.Upstream != nil {
		data.UpstreamMessage = result.Upstream.Message
	}

	response.OK(c, result.Message, data)
}

// DeleteDraft discards a draft
func (h *ReturnHandler) DeleteDraft(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.returnService.DeleteDraft(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

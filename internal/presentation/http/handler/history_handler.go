package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sangkips/pharmadesk/internal/application/service"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/sangkips/pharmadesk/internal/presentation/http/dto/request"
	"github.com/sangkips/pharmadesk/internal/presentation/http/dto/response"
	"github.com/sangkips/pharmadesk/pkg/apperror"
)

// HistoryHandler lists returns already recorded upstream
type HistoryHandler struct {
	historyService *service.HistoryService
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(historyService *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

// List handles GET /returns/:flow
func (h *HistoryHandler) List(c *gin.Context) {
	flow, err := enum.ParseReturnFlow(c.Param("flow"))
	if err != nil {
		response.Error(c, apperror.NewNotFoundError("Return flow"))
		return
	}

	var req request.ReturnFilterRequest
	if !bindQuery(c, &req) {
		return
	}

	result, err := h.historyService.ListReturns(c.Request.Context(), flow, service.HistoryFilter{
		Search:        req.Search,
		TransactionID: req.TransactionID,
	}, pageParams(req.Page, req.PerPage))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithPagination(c, 200, "Returns retrieved", result)
}

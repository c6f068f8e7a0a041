package controller

import (
	"relgraph_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ReportController struct {
	ReportService ReportAPI
}

func NewReportController(reportService ReportAPI) *ReportController {
	return &ReportController{ReportService: reportService}
}

// ReportUserRequest 举报请求
// swagger:model ReportUserRequest
type ReportUserRequest struct {
	TargetID string `json:"targetId" binding:"required"`
	Reason   string `json:"reason" binding:"required" example:"spam"`
}

// ReportUser godoc
// @Summary 举报用户
// @Tags 举报
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body ReportUserRequest true "举报内容"
// @Success 201 {object} util.Response{data=model.Report}
// @Router /api/reports [post]
func (c *ReportController) ReportUser(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	var req ReportUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if !util.IsUUID(req.TargetID) {
		util.BadRequest(ctx, "invalid targetId")
		return
	}

	report, err := c.ReportService.ReportUser(ctx.Request.Context(), userID, req.TargetID, req.Reason)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, report)
}

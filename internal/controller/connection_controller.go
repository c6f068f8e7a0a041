package controller

import (
	"strconv"

	"relgraph_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// ConnectionController 处理双向关系申请相关的HTTP请求
type ConnectionController struct {
	ConnectionService ConnectionAPI
}

func NewConnectionController(connectionService ConnectionAPI) *ConnectionController {
	return &ConnectionController{ConnectionService: connectionService}
}

// SendConnectionRequest 发起关系申请请求
// swagger:model SendConnectionRequest
type SendConnectionRequest struct {
	ReceiverID string  `json:"receiverId" binding:"required" example:"5f1c0c1e-1f0a-4a6e-9a52-0c2e7b7d8f11"`
	Message    *string `json:"message" example:"Hi, let's connect"`
}

// SendRequest godoc
// @Summary 发起关系申请
// @Tags 关系
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body SendConnectionRequest true "申请内容"
// @Success 201 {object} util.Response{data=service.SendRequestResult}
// @Failure 400 {object} util.Response "参数错误/配额已满"
// @Failure 403 {object} util.Response "冷却期内或已屏蔽"
// @Failure 404 {object} util.Response "用户不存在"
// @Failure 409 {object} util.Response "已存在申请或关系"
// @Router /api/connections [post]
func (c *ConnectionController) SendRequest(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	var req SendConnectionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if !util.IsUUID(req.ReceiverID) {
		util.BadRequest(ctx, "invalid receiverId")
		return
	}

	result, err := c.ConnectionService.SendRequest(ctx.Request.Context(), userID, req.ReceiverID, req.Message)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// AcceptRequest godoc
// @Summary 接受关系申请
// @Tags 关系
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "申请ID"
// @Success 200 {object} util.Response{data=model.Connection}
// @Failure 400 {object} util.Response "申请已处理"
// @Failure 403 {object} util.Response "不是接收方"
// @Failure 404 {object} util.Response "申请不存在"
// @Router /api/connections/{id}/accept [post]
func (c *ConnectionController) AcceptRequest(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	conn, err := c.ConnectionService.AcceptRequest(ctx.Request.Context(), id, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, conn)
}

// RejectRequest godoc
// @Summary 拒绝关系申请
// @Tags 关系
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "申请ID"
// @Success 200 {object} util.Response{data=model.Connection}
// @Router /api/connections/{id}/reject [post]
func (c *ConnectionController) RejectRequest(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	conn, err := c.ConnectionService.RejectRequest(ctx.Request.Context(), id, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, conn)
}

// ListConnections godoc
// @Summary 已建立的关系列表
// @Description 游标分页，nextCursor 原样传回即可获取下一页
// @Tags 关系
// @Produce json
// @Security ApiKeyAuth
// @Param cursor query string false "游标"
// @Param limit query int false "每页条数" default(20)
// @Success 200 {object} util.Response{data=util.CursorPageResponse}
// @Failure 400 {object} util.Response "游标非法"
// @Router /api/connections [get]
func (c *ConnectionController) ListConnections(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", strconv.Itoa(util.DefaultPageLimit)))

	page, err := c.ConnectionService.ListConnections(ctx.Request.Context(), userID, ctx.Query("cursor"), limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.CursorPageResponse{
		List:       page.Items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

// ListPending godoc
// @Summary 待处理的申请
// @Tags 关系
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.PendingLists}
// @Router /api/connections/pending [get]
func (c *ConnectionController) ListPending(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	lists, err := c.ConnectionService.ListPending(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, lists)
}

package controller

import (
	"relgraph_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type BlockController struct {
	BlockService BlockAPI
}

func NewBlockController(blockService BlockAPI) *BlockController {
	return &BlockController{BlockService: blockService}
}

// Block godoc
// @Summary 屏蔽用户
// @Description 同时删除双方之间的所有关系申请与关系
// @Tags 屏蔽
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "用户ID"
// @Success 200 {object} util.Response{data=service.BlockResult}
// @Failure 400 {object} util.Response "不能屏蔽自己"
// @Failure 404 {object} util.Response "用户不存在"
// @Router /api/users/{id}/block [post]
func (c *BlockController) Block(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	targetID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	result, err := c.BlockService.Block(ctx.Request.Context(), userID, targetID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Unblock godoc
// @Summary 取消屏蔽
// @Tags 屏蔽
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "用户ID"
// @Success 200 {object} util.Response{data=service.BlockResult}
// @Router /api/users/{id}/block [delete]
func (c *BlockController) Unblock(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	targetID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	result, err := c.BlockService.Unblock(ctx.Request.Context(), userID, targetID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// GetBlockedUsers godoc
// @Summary 我屏蔽的用户
// @Tags 屏蔽
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页条数" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/blocks [get]
func (c *BlockController) GetBlockedUsers(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	page, limit := util.PageParams(ctx)

	items, total, err := c.BlockService.GetBlockedUsers(ctx.Request.Context(), userID, page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: items, Total: total, Page: page, Limit: limit})
}

// IsBlocked godoc
// @Summary 与某用户之间是否存在屏蔽
// @Tags 屏蔽
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "用户ID"
// @Success 200 {object} util.Response
// @Router /api/users/{id}/blocked [get]
func (c *BlockController) IsBlocked(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	targetID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	blocked, err := c.BlockService.IsBlocked(ctx.Request.Context(), userID, targetID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"blocked": blocked})
}

package controller

import (
	"relgraph_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type FollowController struct {
	FollowService FollowAPI
}

func NewFollowController(followService FollowAPI) *FollowController {
	return &FollowController{FollowService: followService}
}

// Follow godoc
// @Summary 关注用户
// @Description 重复关注返回成功
// @Tags 关注
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "用户ID"
// @Success 200 {object} util.Response{data=service.FollowResult}
// @Failure 400 {object} util.Response "不能关注自己"
// @Failure 403 {object} util.Response "已屏蔽"
// @Failure 404 {object} util.Response "用户不存在"
// @Router /api/users/{id}/follow [post]
func (c *FollowController) Follow(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	targetID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	result, err := c.FollowService.Follow(ctx.Request.Context(), userID, targetID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Unfollow godoc
// @Summary 取消关注
// @Tags 关注
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "用户ID"
// @Success 200 {object} util.Response{data=service.FollowResult}
// @Router /api/users/{id}/follow [delete]
func (c *FollowController) Unfollow(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	targetID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	result, err := c.FollowService.Unfollow(ctx.Request.Context(), userID, targetID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// GetFollowers godoc
// @Summary 粉丝列表
// @Tags 关注
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页条数" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/users/{id}/followers [get]
func (c *FollowController) GetFollowers(ctx *gin.Context) {
	targetID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	page, limit := util.PageParams(ctx)

	items, total, err := c.FollowService.GetFollowers(ctx.Request.Context(), targetID, page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: items, Total: total, Page: page, Limit: limit})
}

// GetFollowing godoc
// @Summary 关注列表
// @Tags 关注
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页条数" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/users/{id}/following [get]
func (c *FollowController) GetFollowing(ctx *gin.Context) {
	targetID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	page, limit := util.PageParams(ctx)

	items, total, err := c.FollowService.GetFollowing(ctx.Request.Context(), targetID, page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: items, Total: total, Page: page, Limit: limit})
}

// GetFollowStatus godoc
// @Summary 与某用户的关注状态
// @Tags 关注
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "用户ID"
// @Success 200 {object} util.Response{data=service.FollowStatus}
// @Router /api/users/{id}/follow-status [get]
func (c *FollowController) GetFollowStatus(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	targetID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	status, err := c.FollowService.GetFollowStatus(ctx.Request.Context(), userID, targetID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// GetFollowCounts godoc
// @Summary 粉丝数与关注数
// @Tags 关注
// @Produce json
// @Param id path string true "用户ID"
// @Success 200 {object} util.Response{data=service.FollowCounts}
// @Router /api/users/{id}/follow-counts [get]
func (c *FollowController) GetFollowCounts(ctx *gin.Context) {
	targetID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	counts, err := c.FollowService.GetFollowCounts(ctx.Request.Context(), targetID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, counts)
}

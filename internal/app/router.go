package app

import (
	"relgraph_backend/internal/config"
	"relgraph_backend/internal/middleware"
	"relgraph_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		a.registerConnectionRoutes(authGroup, c)
		a.registerFollowRoutes(authGroup, c)
		a.registerBlockRoutes(authGroup, c)

		authGroup.POST("/reports", c.report.ReportUser)
	}
}

func (a *App) registerConnectionRoutes(group *gin.RouterGroup, c *controllers) {
	connections := group.Group("/connections")
	{
		connections.POST("", c.connection.SendRequest)
		connections.GET("", c.connection.ListConnections)
		connections.GET("/pending", c.connection.ListPending)
		connections.POST("/:id/accept", c.connection.AcceptRequest)
		connections.POST("/:id/reject", c.connection.RejectRequest)
	}
}

func (a *App) registerFollowRoutes(group *gin.RouterGroup, c *controllers) {
	group.POST("/users/:id/follow", c.follow.Follow)
	group.DELETE("/users/:id/follow", c.follow.Unfollow)
	group.GET("/users/:id/follow-status", c.follow.GetFollowStatus)
	group.GET("/users/:id/follow-counts", c.follow.GetFollowCounts)
	group.GET("/users/:id/followers", c.follow.GetFollowers)
	group.GET("/users/:id/following", c.follow.GetFollowing)
}

func (a *App) registerBlockRoutes(group *gin.RouterGroup, c *controllers) {
	group.POST("/users/:id/block", c.block.Block)
	group.DELETE("/users/:id/block", c.block.Unblock)
	group.GET("/users/:id/blocked", c.block.IsBlocked)
	group.GET("/blocks", c.block.GetBlockedUsers)
}

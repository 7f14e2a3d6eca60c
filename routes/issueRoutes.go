package routes

import (
	"govnav-be/controllers"
	"govnav-be/middlewares"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue routes
func IssueRoutes(r *gin.Engine) {
	issue := r.Group("/api/issue")
	{
		issue.GET("", controllers.GetAllIssues)
		issue.GET("/analytics", middlewares.AuthMiddleware(), middlewares.RequireGovEmployee(), controllers.GetIssueAnalytics)
		issue.POST("/create", middlewares.AuthMiddleware(), middlewares.IssueRateLimiter(5), controllers.CreateIssue)
		issue.GET("/:id", controllers.GetIssue)
		issue.PUT("/:id", middlewares.AuthMiddleware(), middlewares.RequireGovEmployee(), controllers.UpdateIssueStatus)
		issue.POST("/:id/upvote", middlewares.AuthMiddleware(), controllers.UpvoteIssue)
		issue.POST("/:id/comments", middlewares.AuthMiddleware(), controllers.AddComment)
	}
}

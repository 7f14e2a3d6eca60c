package routes

import (
	"govnav-be/controllers"
	"govnav-be/middlewares"

	"github.com/gin-gonic/gin"
)

// AuthRoutes sets up the authentication routes
func AuthRoutes(r *gin.Engine) {
	auth := r.Group("/api/auth")
	{
		auth.POST("/signup", controllers.Signup)
		auth.POST("/login", controllers.Login)
		auth.POST("/logout", controllers.Logout)
		auth.POST("/request-otp", controllers.RequestOTP)
		auth.POST("/verify-otp", controllers.VerifyOTP)
		auth.GET("/me", middlewares.AuthMiddleware(), controllers.GetMe)
	}
}

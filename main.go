package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"govnav-be/config"
	"govnav-be/controllers"
	"govnav-be/messaging"
	"govnav-be/models"
	"govnav-be/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	config.InitLogger(os.Getenv("LOG_LEVEL"))
	defer config.Logger.Sync()

	db := config.ConnectDB()
	if db == nil {
		config.Logger.Fatal("Failed to connect to MongoDB")
	}
	config.Logger.Info("MongoDB connection established")

	if err := models.EnsureIssueIndexes(config.GetCollection("issues")); err != nil {
		config.Logger.Fatal("Failed to create issue indexes", zap.Error(err))
	}
	if err := models.EnsureUserIndexes(config.GetCollection("users")); err != nil {
		config.Logger.Fatal("Failed to create user indexes", zap.Error(err))
	}

	config.ConnectRedis()

	if rabbitURL := os.Getenv("RABBITMQ_URL"); rabbitURL != "" {
		publisher, err := messaging.NewPublisher(rabbitURL, config.Logger)
		if err != nil {
			config.Logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer publisher.Close()
		controllers.SetNotifier(publisher)
	} else {
		config.Logger.Warn("RABBITMQ_URL not set, outbound emails will only be logged")
		controllers.SetNotifier(&messaging.LogNotifier{Logger: config.Logger})
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{os.Getenv("FRONTEND_URL")},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.AuthRoutes(r)
	routes.IssueRoutes(r)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		config.Logger.Fatal("Failed to start server", zap.Error(err))
	}
}

package main

import (
	"log"
	"os"

	"github.com/driftchat/backend/controllers"
	"github.com/driftchat/backend/database"
	"github.com/driftchat/backend/docs"
	"github.com/driftchat/backend/jobs"
	"github.com/driftchat/backend/middleware"
	"github.com/driftchat/backend/websocket"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Driftchat API
// @version         1.0
// @description     API Server for Driftchat
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize database
	database.Connect()
	database.Migrate()

	// Background maintenance
	jobs.Start()

	// Set up Swagger info
	docs.SwaggerInfo.Title = "Driftchat API"
	docs.SwaggerInfo.Description = "API Server for Driftchat"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:" + os.Getenv("PORT")
	if docs.SwaggerInfo.Host == "localhost:" {
		docs.SwaggerInfo.Host = "localhost:8080"
	}
	docs.SwaggerInfo.BasePath = "/"
	docs.SwaggerInfo.Schemes = []string{"http"}

	// Set up router
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Uploaded media
	router.Static("/uploads", "./uploads")

	// Public routes
	auth := router.Group("/api")
	{
		auth.POST("/register", controllers.Register)
		auth.POST("/login", controllers.Login)
		auth.POST("/auth/reset-password", controllers.ResetPassword)
	}

	// Protected routes
	api := router.Group("/api")
	api.Use(middleware.JWTAuth())
	{
		// Room routes
		api.GET("/rooms", controllers.GetRooms)
		api.POST("/rooms/join", controllers.JoinRoom)
		api.GET("/rooms/search", controllers.SearchRooms)
		api.GET("/rooms/:id", controllers.GetRoom)
		api.PUT("/rooms/:id", controllers.UpdateRoom)

		// Message routes
		api.GET("/messages", controllers.GetMessages)
		api.POST("/messages", controllers.CreateMessage)
		api.POST("/messages/read", controllers.ReadMessages)

		// User routes
		api.GET("/users/search", controllers.SearchUsers)
		api.GET("/users/:id", controllers.GetUser)
		api.GET("/users/:id/status", controllers.GetUserStatus)
		api.POST("/users/update-status", controllers.UpdateStatus)
		api.PUT("/users/me", controllers.UpdateProfile)

		// Upload routes
		api.POST("/upload", controllers.UploadFile)
		api.POST("/upload-avatar", controllers.UploadAvatar)

		// Push notification routes
		api.POST("/push-subscriptions", controllers.SaveSubscription)
		api.DELETE("/push-subscriptions", controllers.DeleteSubscription)
		api.POST("/notifications", controllers.SendNotification)
	}

	// WebSocket route
	router.GET("/ws", websocket.HandleConnection)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server running on port %s", port)
	log.Printf("Swagger documentation available at http://localhost:%s/swagger/index.html", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nevexa-app/nevexa/internal/api"
	"github.com/nevexa-app/nevexa/internal/auth"
	"github.com/nevexa-app/nevexa/internal/database"
	"github.com/nevexa-app/nevexa/internal/logger"
	"github.com/nevexa-app/nevexa/internal/retention"
	internalWs "github.com/nevexa-app/nevexa/internal/websocket"
)

const defaultRetention = 24 * time.Hour

func main() {
	// Log to both console and file
	logFile, err := os.OpenFile("server.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	logger.SetOutput(io.MultiWriter(os.Stdout, logFile))

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	env := os.Getenv("ENV")
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	auth.InitJWTKey([]byte(jwtSecret))

	db, err := connectDatabase()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database successfully")

	// Initialize router with default middleware (logger and recovery)
	router := gin.Default()

	allowedOrigins := strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Realtime hub; registered connections form the per-user channels
	hub := internalWs.NewHub(db)
	go hub.Run()

	authHandler := api.NewAuthHandler(db)
	messageHandler := api.NewMessageHandler(db, hub)
	conversationHandler := api.NewConversationHandler(db)

	// Message retention sweep
	sweeper := retention.NewSweeper(db, retentionWindow())
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start retention sweeper: %v", err)
	}
	defer sweeper.Stop()

	// Public routes (no authentication required)
	router.POST("/api/auth/register", authHandler.Register)
	router.POST("/api/auth/login", authHandler.Login)

	// Protected routes (authentication required)
	authorized := router.Group("/api")
	authorized.Use(api.AuthMiddleware())
	{
		authorized.GET("/auth/me", authHandler.GetMe)
		authorized.GET("/users", authHandler.GetAllUsers)
		authorized.GET("/users/search", authHandler.SearchUsers)

		authorized.POST("/messages", messageHandler.SendMessage)
		authorized.GET("/messages", messageHandler.GetMessages)

		authorized.GET("/conversations", conversationHandler.GetConversations)
		authorized.PATCH("/conversations/:counterpartID/read", conversationHandler.MarkConversationRead)
	}

	// WebSocket route; browsers cannot set headers on websocket dials, so the
	// token may arrive as a query parameter instead
	router.GET("/api/ws", func(c *gin.Context) {
		tokenParam := c.Query("token")
		if tokenParam != "" {
			claims, err := auth.ValidateToken(tokenParam)
			if err == nil {
				if userUUID, err := uuid.Parse(claims.UserID); err == nil {
					c.Set("userID", userUUID)
					c.Set("username", claims.Username)
					hub.HandleWebSocket(c)
					return
				}
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		// Fall back to the Authorization header for non-browser clients
		api.AuthMiddleware()(c)
		if c.IsAborted() {
			return
		}
		hub.HandleWebSocket(c)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited properly")
}

func connectDatabase() (database.DBInterface, error) {
	dbTypeStr := os.Getenv("DB_TYPE")
	if dbTypeStr == "" {
		dbTypeStr = "postgres"
	}
	dbType := database.DatabaseType(dbTypeStr)

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Fall back to individual connection parameters
		dbHost := os.Getenv("DB_HOST")
		dbPort := os.Getenv("DB_PORT")
		dbName := os.Getenv("DB_NAME")
		dbUser := os.Getenv("DB_USER")
		dbPass := os.Getenv("DB_PASSWORD")

		if dbHost == "" || dbName == "" || dbUser == "" {
			return nil, fmt.Errorf("database connection details missing: set DATABASE_URL or individual DB_* variables")
		}

		dbURL = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			dbUser, dbPass, dbHost, dbPort, dbName,
		)
	}

	return database.NewDatabase(dbType, dbURL)
}

// retentionWindow reads MESSAGE_RETENTION as a Go duration. Unset means the
// default 24h window; "0" disables expiry entirely.
func retentionWindow() time.Duration {
	raw := os.Getenv("MESSAGE_RETENTION")
	if raw == "" {
		return defaultRetention
	}

	window, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("Invalid MESSAGE_RETENTION %q: %v", raw, err)
	}
	return window
}

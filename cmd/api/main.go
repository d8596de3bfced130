package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Salman7o/StudyMate-sub001/internal/config"
	"github.com/Salman7o/StudyMate-sub001/internal/database"
	"github.com/Salman7o/StudyMate-sub001/internal/http/handlers"
	"github.com/Salman7o/StudyMate-sub001/internal/http/middleware"
	"github.com/Salman7o/StudyMate-sub001/internal/models"
	"github.com/Salman7o/StudyMate-sub001/internal/store"
	"github.com/Salman7o/StudyMate-sub001/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if cfg.DBDSN == "" || cfg.JWTSecret == "" {
		log.Fatal("DB_DSN and JWT_SECRET must be set")
	}

	db, err := database.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("failed connect db:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
	); err != nil {
		log.Fatal("failed migrate:", err)
	}

	msgStore := store.New(db)
	hub := ws.NewHub()
	gateway := &ws.Gateway{
		Hub:       hub,
		Store:     msgStore,
		JWTSecret: cfg.JWTSecret,
		AuthGrace: cfg.WSAuthGrace,
	}

	r := gin.Default()

	// Auth
	authH := &handlers.AuthHandler{DB: db, JWTSecret: cfg.JWTSecret}
	r.POST("/api/v1/auth/register", authH.Register)
	r.POST("/api/v1/auth/login", authH.Login)

	// WebSocket endpoint
	wsH := &handlers.WSHandler{
		Gateway:              gateway,
		WSInsecureSkipVerify: cfg.WSInsecureSkipVerify,
	}
	r.GET("/ws", wsH.Handle)

	// Protected routes
	authed := r.Group("/api/v1")
	authed.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	chatH := &handlers.ChatHandler{Store: msgStore, Hub: hub}
	authed.POST("/messages", chatH.SendMessage)
	authed.GET("/conversations", chatH.ListConversations)
	authed.GET("/conversations/:id/messages", chatH.ListMessages)
	authed.PATCH("/messages/:id/status", chatH.UpdateMessageStatus)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Println("listening on", addr)
	log.Fatal(r.Run(addr))
}

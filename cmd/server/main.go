package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/schoolhub/social-api/internal/config"
	"github.com/schoolhub/social-api/internal/database"
	"github.com/schoolhub/social-api/internal/handlers"
	"github.com/schoolhub/social-api/internal/repository"
	"github.com/schoolhub/social-api/internal/services"
	"github.com/schoolhub/social-api/pkg/logger"
	"github.com/schoolhub/social-api/pkg/middleware"
)

func main() {
	logger.InitLogger()
	logger.Log.Info("Logger initialized")

	cfg := config.LoadConfig()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	db, err := database.ConnectDB(cfg)
	if err != nil {
		log.Fatalf("Database connection error: %v", err)
	}

	if err := database.EnsureIndexes(context.Background(), db); err != nil {
		log.Fatalf("Index creation error: %v", err)
	}

	txn := database.NewMongoTxnRunner(db.Client())

	// --- Repositories ---
	userRepo := repository.NewUserRepository(db)
	friendRepo := repository.NewFriendRepository(db)
	convRepo := repository.NewConversationRepository(db)

	// --- Services ---
	userService := services.NewUserService(userRepo)
	friendService := services.NewFriendService(friendRepo, convRepo, userRepo, txn)
	convService := services.NewConversationService(convRepo, friendRepo, userRepo, txn)
	chatService := services.NewChatService(convRepo, userRepo, txn)

	// --- Handlers ---
	hub := handlers.NewHub(convRepo)
	userHandler := handlers.NewUserHandler(userService, cfg)
	friendHandler := handlers.NewFriendHandler(friendService)
	convHandler := handlers.NewConversationHandler(convService, chatService)
	chatHandler := handlers.NewChatHandler(chatService, hub)

	router := mux.NewRouter()

	// Public auth routes
	router.HandleFunc("/users/register", userHandler.RegisterUserHandler).Methods("POST")
	router.HandleFunc("/users/login", userHandler.LoginUserHandler).Methods("POST")

	// Websocket authenticates via token query param, not the middleware
	router.HandleFunc("/ws", chatHandler.ServeWS(cfg.JWTSecret))

	// Protected user routes
	protectedUserRoutes := router.PathPrefix("/users").Subrouter()
	protectedUserRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedUserRoutes.Use(middleware.UpdateLastActiveMiddleware(userService))
	protectedUserRoutes.HandleFunc("/me", userHandler.MeHandler).Methods("GET")

	// Friend routes
	protectedFriendRoutes := router.PathPrefix("/friends").Subrouter()
	protectedFriendRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedFriendRoutes.Use(middleware.UpdateLastActiveMiddleware(userService))
	protectedFriendRoutes.HandleFunc("/request", friendHandler.SendFriendRequestHandler).Methods("POST")
	protectedFriendRoutes.HandleFunc("/requests", friendHandler.GetPendingRequestsHandler).Methods("GET")
	protectedFriendRoutes.HandleFunc("/requests/{id}/accept", friendHandler.AcceptFriendRequestHandler).Methods("POST")
	protectedFriendRoutes.HandleFunc("/requests/{id}/reject", friendHandler.RejectFriendRequestHandler).Methods("POST")
	protectedFriendRoutes.HandleFunc("", friendHandler.GetFriendsHandler).Methods("GET")

	// Conversation routes
	protectedConvRoutes := router.PathPrefix("/conversations").Subrouter()
	protectedConvRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedConvRoutes.Use(middleware.UpdateLastActiveMiddleware(userService))
	protectedConvRoutes.HandleFunc("", convHandler.ListConversationsHandler).Methods("GET")
	protectedConvRoutes.HandleFunc("/group", convHandler.CreateGroupHandler).Methods("POST")
	protectedConvRoutes.HandleFunc("/{id}", convHandler.GetConversationHandler).Methods("GET")
	protectedConvRoutes.HandleFunc("/{id}/leave", convHandler.LeaveGroupHandler).Methods("POST")
	protectedConvRoutes.HandleFunc("/{id}", convHandler.DeleteGroupHandler).Methods("DELETE")
	protectedConvRoutes.HandleFunc("/{id}/friend", convHandler.RemoveFriendHandler).Methods("DELETE")
	protectedConvRoutes.HandleFunc("/{id}/messages", chatHandler.SendMessageHandler).Methods("POST")
	protectedConvRoutes.HandleFunc("/{id}/messages", chatHandler.ListMessagesHandler).Methods("GET")
	protectedConvRoutes.HandleFunc("/{id}/messages/{messageId}/read", chatHandler.MarkReadHandler).Methods("POST")
	protectedConvRoutes.HandleFunc("/{id}/messages/{messageId}/seen", chatHandler.SeenByHandler).Methods("GET")

	router.Use(middleware.LoggingMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	handler := c.Handler(router)

	fmt.Printf("Server running on port %s\n", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}

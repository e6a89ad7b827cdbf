// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/services/chat/handlers"
	"github.com/AleutianAI/AleutianChat/services/chat/middleware"
	"github.com/AleutianAI/AleutianChat/services/chat/store"
	"github.com/AleutianAI/AleutianChat/services/llm"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers every endpoint of the chat service.
//
// /health and /metrics are unauthenticated; everything under /v1 passes
// through the auth middleware with the given provider.
func SetupRoutes(router *gin.Engine, st store.ConversationStore, llmClient llm.Client,
	authProvider extensions.AuthProvider) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	chatHandler := handlers.NewChatHandler(st, llmClient)
	convHandler := handlers.NewConversationHandler(st)

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(authProvider))
	{
		v1.POST("/chat", chatHandler.HandleChat)

		conversations := v1.Group("/conversations")
		{
			conversations.GET("", convHandler.HandleList)
			conversations.POST("", convHandler.HandleCreate)
			conversations.GET("/:id", convHandler.HandleGet)
			conversations.DELETE("/:id", convHandler.HandleDelete)
			conversations.GET("/:id/messages", convHandler.HandleListMessages)
			conversations.POST("/:id/messages", convHandler.HandleAppendMessage)
		}
	}
}

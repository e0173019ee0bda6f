// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emancancode/emanai/services/llm"
	"github.com/emancancode/emanai/services/relay/conversation"
	"github.com/emancancode/emanai/services/relay/handlers"
	"github.com/emancancode/emanai/services/relay/session"
)

// SetupRoutes registers every relay endpoint on the router.
func SetupRoutes(router *gin.Engine, client llm.LLMClient,
	store conversation.DocumentStore, registry *session.Registry,
	sessionCfg session.Config) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	convos := handlers.NewConversationHandler(store)

	api := router.Group("/api")
	{
		api.POST("/chat", handlers.HandleChatStream(client, registry, sessionCfg))
		api.GET("/models", handlers.ListModels(client))

		api.GET("/conversations", convos.List)
		api.POST("/conversations", convos.CreateOrMerge)
		api.GET("/conversations/:id", convos.Get)
		api.PUT("/conversations/:id", convos.Update)
		api.DELETE("/conversations/:id", convos.Delete)
	}
}

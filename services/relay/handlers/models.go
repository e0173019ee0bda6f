// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emancancode/emanai/services/llm"
	"github.com/emancancode/emanai/services/relay/observability"
)

// ListModels proxies the upstream model listing.
//
// An unreachable upstream answers 200 with an empty model list rather
// than an error. The desktop client polls this endpoint at startup and
// treats any non-200 as fatal, so degrade to "no models" instead.
func ListModels(client llm.LLMClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := client.ListModels(c.Request.Context())
		if err != nil {
			slog.Warn("Model listing failed", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointModels, observability.ErrorCodeUpstream)
			}
			c.JSON(http.StatusOK, gin.H{"models": []any{}})
			return
		}
		c.Data(http.StatusOK, "application/json", raw)
	}
}

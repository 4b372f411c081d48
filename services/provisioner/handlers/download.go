// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
)

// HandleDownload serves a session's artifacts as a zip attachment.
//
// An in-flight run cannot be downloaded; its journal is still being
// written. A session whose artifacts have been retired is gone for good
// and reports 404 like an unknown id.
func HandleDownload(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := frontDoorTracer.Start(c.Request.Context(), "HandleDownload")
		defer span.End()
		sessionID := c.Param("id")

		if state, ok := deps.Registry.Get(sessionID); ok && !state.Complete && state.Error == "" {
			c.JSON(http.StatusConflict, gin.H{"error": "run still in progress"})
			return
		}
		if !deps.Store.Exists(sessionID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}

		zipPath, err := deps.Store.Zip(sessionID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("session zip failed", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to package session"})
			return
		}

		slog.Info("serving session bundle", "session_id", sessionID)
		c.FileAttachment(zipPath, "session_"+sessionID+".zip")
	}
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "provisioner"})
}

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
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jinterlante1206/DemoForge/pkg/validation"
	"github.com/jinterlante1206/DemoForge/services/provisioner/pipeline"
	"github.com/jinterlante1206/DemoForge/services/provisioner/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var frontDoorTracer = otel.Tracer("demoforge.provisioner.handlers")

// GenerateRequest is the provisioning request body.
type GenerateRequest struct {
	BaseURL        string             `json:"base_url" binding:"required,url"`
	PAT            string             `json:"pat" binding:"required"`
	Domain         string             `json:"domain" binding:"required"`
	CompanyURL     string             `json:"company_url"`
	SupportURL     string             `json:"support_url"`
	Accounts       int                `json:"accounts"`
	TicketsPerPart int                `json:"tickets_per_part"`
	IssuesPerPart  int                `json:"issues_per_part"`
	Settings       *pipeline.Settings `json:"settings"`
}

// HandleGenerate launches a provisioning run.
//
// The request is validated before anything is registered, so a rejected
// PAT or base URL costs nothing server-side. On success the run starts
// on its own goroutine and the session id is returned immediately.
func HandleGenerate(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := frontDoorTracer.Start(c.Request.Context(), "HandleGenerate")
		defer span.End()
		var req GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := validation.ValidatePAT(req.PAT); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := validation.ValidateBaseURL(req.BaseURL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		domain, err := validation.SanitizeDomain(req.Domain)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		sessionID := deps.Registry.Begin(registry.KindGenerate, cancel)
		if err := deps.Store.Create(sessionID); err != nil {
			cancel()
			deps.Registry.Remove(sessionID)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("session directory creation failed", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}

		params := pipeline.NewParams(pipeline.ParamsSpec{
			BaseURL:    req.BaseURL,
			PAT:        req.PAT,
			Domain:     domain,
			CompanyURL: req.CompanyURL,
			SupportURL: req.SupportURL,
			SessionID:  sessionID,
			Accounts:   req.Accounts,
			MaxTickets: req.TicketsPerPart,
			MaxIssues:  req.IssuesPerPart,
			Settings:   req.Settings,
		})

		slog.Info("provisioning run accepted",
			"session_id", sessionID,
			"domain", domain,
			"accounts", params.Accounts())
		deps.launchRun(ctx, cancel, sessionID,
			"Content generation completed successfully", deps.RunProvision, params)
		c.JSON(http.StatusAccepted, gin.H{"session_id": sessionID})
	}
}

// CleanupRequest is the decommission request body.
type CleanupRequest struct {
	BaseURL string `json:"base_url" binding:"required,url"`
	PAT     string `json:"pat" binding:"required"`
}

// HandleCleanup launches a decommission run against the tenant.
func HandleCleanup(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := frontDoorTracer.Start(c.Request.Context(), "HandleCleanup")
		defer span.End()
		var req CleanupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := validation.ValidatePAT(req.PAT); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := validation.ValidateBaseURL(req.BaseURL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		sessionID := deps.Registry.Begin(registry.KindCleanup, cancel)
		if err := deps.Store.Create(sessionID); err != nil {
			cancel()
			deps.Registry.Remove(sessionID)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("session directory creation failed", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}

		params := pipeline.NewParams(pipeline.ParamsSpec{
			BaseURL:   req.BaseURL,
			PAT:       req.PAT,
			SessionID: sessionID,
		})

		slog.Info("cleanup run accepted", "session_id", sessionID)
		deps.launchRun(ctx, cancel, sessionID,
			"Cleanup completed successfully", deps.RunCleanup, params)
		c.JSON(http.StatusAccepted, gin.H{"session_id": sessionID})
	}
}

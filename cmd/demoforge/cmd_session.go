// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jinterlante1206/DemoForge/pkg/ux"
)

// runStatusCommand prints the state of a run, optionally following it.
func runStatusCommand(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	client := newServiceClient(resolveServiceURL())

	if statusWatch {
		finishRun(client, sessionID)
		return
	}

	doc, err := client.progress(sessionID)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	ux.Info(fmt.Sprintf("Session:  %s (%s)", doc.SessionID, doc.Kind))
	ux.Info(fmt.Sprintf("Progress: %s", ux.ProgressBar(doc.Progress, 100, progressBarWidth)))
	switch {
	case doc.Error != "":
		ux.Error(doc.Error)
		os.Exit(1)
	case doc.Complete:
		ux.Success(doc.Status)
	default:
		ux.Info(fmt.Sprintf("Status:   %s", doc.Status))
	}
}

// runDownloadCommand saves a finished run's zip bundle to disk.
func runDownloadCommand(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	client := newServiceClient(resolveServiceURL())

	outPath := downloadOutput
	if outPath == "" {
		outPath = fmt.Sprintf("session_%s.zip", sessionID)
	}

	err := ux.WithSpinner(fmt.Sprintf("Downloading %s", outPath), func() error {
		return client.download(sessionID, outPath)
	})
	if err != nil {
		os.Exit(1)
	}
}

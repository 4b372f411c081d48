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

// runHealthCommand checks the provisioner service health endpoint.
func runHealthCommand(cmd *cobra.Command, args []string) {
	url := resolveServiceURL()
	if err := newServiceClient(url).health(); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("provisioner is healthy at %s", url))
}

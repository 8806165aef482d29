// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the JSON Schemas of the API request bodies.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/holomush/identity/internal/httpapi"
)

func main() {
	if err := os.MkdirAll("schemas", 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	for _, s := range httpapi.RequestSchemas() {
		data, err := httpapi.RequestSchema(s.Name, s.Body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating schema %s: %v\n", s.Name, err)
			os.Exit(1)
		}

		outPath := filepath.Join("schemas", s.Name+".schema.json")
		if err := os.WriteFile(outPath, data, 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
}

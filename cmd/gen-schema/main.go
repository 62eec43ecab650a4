// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

// Command gen-schema generates the JSON Schema files for the API request
// bodies.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/facegate/facegate/internal/api"
)

func main() {
	dir := "schemas"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if err := generate(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func generate(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	for _, name := range api.RequestNames() {
		schema, err := api.GenerateSchema(name)
		if err != nil {
			return fmt.Errorf("generating %s schema: %w", name, err)
		}
		outPath := filepath.Join(dir, name+".schema.json")
		if err := os.WriteFile(outPath, schema, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
	return nil
}

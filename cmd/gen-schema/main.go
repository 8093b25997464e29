// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

// Command gen-schema writes the auth request JSON Schemas to schemas/.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/streambox/auth-service/internal/validate"
)

func main() {
	outDir := "schemas"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	for _, name := range validate.SchemaNames() {
		schema, err := validate.GenerateSchema(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating %s schema: %v\n", name, err)
			os.Exit(1)
		}

		outPath := filepath.Join(outDir, name+".schema.json")
		if err := os.WriteFile(outPath, schema, 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
}

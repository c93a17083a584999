// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

// Command gen-schema writes the JSON Schema of the dynamicdb config file.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dynamicdb/dynamicdb/internal/config"
)

func main() {
	outPath := flag.String("out", filepath.Join("schemas", "config.schema.json"), "output file")
	flag.Parse()

	schema, err := config.GenerateSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*outPath, append(schema, '\n'), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s\n", *outPath)
}

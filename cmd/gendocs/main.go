package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra/doc"
	"github.com/yoanbernabeu/sshfleet/internal/cmd"
)

func main() {
	outputDir := "./docs/commands"
	if len(os.Args) > 1 {
		outputDir = os.Args[1]
	}

	// Create output directory if it doesn't exist
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	// Front matter for the docs site
	filePrepender := func(filename string) string {
		name := filepath.Base(filename)
		name = strings.TrimSuffix(name, filepath.Ext(name))
		title := strings.ReplaceAll(name, "_", " ")
		return `---
title: "` + title + `"
---

`
	}

	// Custom link handler for internal links
	linkHandler := func(name string) string {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		return "/sshfleet/commands/" + strings.ToLower(base) + "/"
	}

	rootCmd := cmd.GetRootCmd()
	rootCmd.DisableAutoGenTag = true
	err := doc.GenMarkdownTreeCustom(rootCmd, outputDir, filePrepender, linkHandler)
	if err != nil {
		log.Fatalf("Failed to generate documentation: %v", err)
	}

	manDir := filepath.Join(outputDir, "man")
	if err := os.MkdirAll(manDir, 0755); err != nil {
		log.Fatalf("Failed to create man directory: %v", err)
	}
	header := &doc.GenManHeader{Title: "SSHFLEET", Section: "1"}
	if err := doc.GenManTree(rootCmd, header, manDir); err != nil {
		log.Fatalf("Failed to generate man pages: %v", err)
	}

	log.Printf("Documentation generated in %s", outputDir)
}

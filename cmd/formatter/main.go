// Package main provides the markdown formatter command-line tool: it aligns
// the tables of publication reports and re-signs the signed ones.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"djeworker/internal/formatter"
	"djeworker/internal/validator"
	"djeworker/pkg/metadata"
)

func main() {
	targetPath := flag.String("path", ".", "Path to file or directory to format")
	write := flag.Bool("write", false, "Write changes to file (default: false, dry-run)")
	help := flag.Bool("help", false, "Show usage information")

	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}

	fmt.Printf("📂 Scanning path: %s\n", *targetPath)

	if *write {
		fmt.Println("✍️  Write mode ENABLED (files will be modified)")
	} else {
		fmt.Println("👀 Dry-run mode (no changes will be written)")
	}

	fmt.Println()

	count, changed, failed := 0, 0, 0

	err := filepath.WalkDir(*targetPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("❌ Error accessing path %s: %v\n", path, err)

			failed++

			return nil
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && d.Name() != "." {
				return filepath.SkipDir
			}

			return nil
		}

		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		count++

		wasChanged, procErr := processFile(path, *write)

		switch {
		case procErr != nil:
			fmt.Printf("❌ Failed to process %s: %v\n", path, procErr)

			failed++
		case wasChanged && *write:
			changed++

			fmt.Printf("✅ Formatted: %s\n", path)
		case wasChanged:
			changed++

			fmt.Printf("📝 Would format: %s\n", path)
		}

		return nil
	})
	if err != nil {
		log.Fatalf("❌ Error walking path: %v\n", err)
	}

	fmt.Println("\n----------------------------------------------------------------")
	fmt.Printf("📈 Summary:\n")
	fmt.Printf("  Scanned: %d files\n", count)
	fmt.Printf("  Changed: %d files\n", changed)
	fmt.Printf("  Errors:  %d\n", failed)

	if changed > 0 && !*write {
		fmt.Println("\n💡 Run with -write to apply changes.")
		os.Exit(1)
	}
}

// processFile aligns the tables of one file. A signed file keeps its
// signature, re-hashed; a tampered one is refused, since re-signing would
// hide the edit.
func processFile(path string, write bool) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	original := string(content)

	if meta, _ := metadata.Extract(original); meta != nil {
		if res := validator.NewReportValidator().ValidateIntegrity(original); !res.IsValid {
			res.WriteErrors(os.Stdout)

			return false, fmt.Errorf("signature does not match content")
		}
	}

	formatted, err := formatter.FormatMarkdown(original)
	if err != nil {
		return false, err
	}

	if strings.TrimRight(formatted, "\n") == strings.TrimRight(original, "\n") {
		return false, nil
	}

	if write {
		if err := os.WriteFile(path, []byte(formatted+"\n"), 0o644); err != nil {
			return false, err
		}
	}

	return true, nil
}

func printUsage() {
	fmt.Println("Usage: ./bin/formatter [OPTIONS]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  ./bin/formatter -path reports")
	fmt.Println("  ./bin/formatter -path reports/publicacoes.md -write")
}

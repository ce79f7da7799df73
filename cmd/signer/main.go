// Package main provides the signer command-line tool: it validates a markdown
// publications report and signs it, or verifies an existing signature.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"djeworker/internal/validator"
	"djeworker/pkg/metadata"
)

func main() {
	inputPath := flag.String("input", "", "Path to the report (e.g., publicacoes.md)")
	verify := flag.Bool("verify", false, "Only verify the existing signature")
	strict := flag.Bool("strict", false, "Reject rows without a case number")
	source := flag.String("source", "", "Source recorded in the signature")
	flag.Parse()

	if *inputPath == "" {
		fmt.Println("Usage: signer -input <path> [-verify] [-strict]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	contentBytes, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("Error reading file: %v\n", err)
	}

	content := string(contentBytes)
	fmt.Printf("📂 Reading: %s (%d bytes)\n", *inputPath, len(content))

	v := &validator.ReportValidator{RequireCaseNumber: *strict}

	if *verify {
		result := v.ValidateIntegrity(content)
		if !result.IsValid {
			result.WriteErrors(os.Stdout)
			os.Exit(1)
		}

		meta, _ := metadata.Extract(content)
		fmt.Printf("✅ Signature valid: %d records, generated %s\n", meta.Records, meta.GeneratedAt.Format("02/01/2006 15:04"))

		return
	}

	fmt.Println("🔍 Validating publications table...")

	result := v.ValidateReport(content)
	fmt.Println(result.String())
	result.WriteErrors(os.Stdout)

	if !result.IsValid {
		fmt.Println("❌ Skipping signature due to validation failure.")
		os.Exit(1)
	}

	meta := metadata.Metadata{Records: result.Stats.TotalRows, Validated: true, Source: *source}
	if old, _ := metadata.Extract(content); old != nil && meta.Source == "" {
		meta.Source = old.Source
	}

	fmt.Println("✍️  Signing file...")

	if err := os.WriteFile(*inputPath, []byte(metadata.Sign(content, meta)), 0o644); err != nil {
		log.Fatalf("Error writing file: %v\n", err)
	}

	fmt.Printf("✅ Signed and saved to: %s\n", *inputPath)
}

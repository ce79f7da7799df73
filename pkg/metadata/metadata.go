// Package metadata signs generated reports with a trailing block carrying a
// content hash, so edited or truncated reports can be detected.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// TagStart opens the signature block.
	TagStart = "<!-- REPORT_SIGNATURE"
	// TagEnd closes the signature block.
	TagEnd = "REPORT_SIGNATURE_END -->"
)

// Signature verification errors.
var (
	ErrNoSignature  = errors.New("no signature block found")
	ErrNoHashFound  = errors.New("no hash found in signature")
	ErrHashMismatch = errors.New("hash mismatch")
)

// Metadata describes a signed report.
type Metadata struct {
	GeneratedAt time.Time
	Source      string
	Hash        string
	Records     int
	// Validated is set when every record passed keyword validation.
	Validated bool
}

var signatureRegex = regexp.MustCompile(`(?s)<!--\s*REPORT_SIGNATURE\s*\n(.*?)\n\s*REPORT_SIGNATURE_END\s*-->`)

// Extract splits content into its signature and the signed body. The body has
// trailing newlines trimmed, which is the form that gets hashed.
func Extract(content string) (*Metadata, string) {
	match := signatureRegex.FindStringSubmatch(content)
	body := strings.TrimRight(signatureRegex.ReplaceAllString(content, ""), "\n")

	if len(match) < 2 {
		return nil, body
	}

	meta := &Metadata{}

	for line := range strings.SplitSeq(match[1], "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}

		val = strings.TrimSpace(val)

		switch strings.TrimSpace(key) {
		case "GENERATED_AT":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				meta.GeneratedAt = t
			}
		case "SOURCE":
			meta.Source = val
		case "RECORDS":
			meta.Records, _ = strconv.Atoi(val)
		case "VALIDATED":
			meta.Validated = strings.EqualFold(val, "TRUE")
		case "HASH":
			meta.Hash = val
		}
	}

	return meta, body
}

// CalculateHash returns the hex SHA-256 of the unsigned body of content.
func CalculateHash(content string) string {
	_, body := Extract(content)
	sum := sha256.Sum256([]byte(body))

	return hex.EncodeToString(sum[:])
}

// Sign replaces any signature of content with a fresh one for meta. The hash
// is always recomputed; a zero GeneratedAt is stamped with the current time.
func Sign(content string, meta Metadata) string {
	_, body := Extract(content)

	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}

	validated := "FALSE"
	if meta.Validated {
		validated = "TRUE"
	}

	var sb strings.Builder

	sb.WriteString(body)
	sb.WriteString("\n\n")
	sb.WriteString(TagStart + "\n")
	fmt.Fprintf(&sb, "GENERATED_AT: %s\n", meta.GeneratedAt.UTC().Format(time.RFC3339))

	if meta.Source != "" {
		fmt.Fprintf(&sb, "SOURCE: %s\n", meta.Source)
	}

	fmt.Fprintf(&sb, "RECORDS: %d\n", meta.Records)
	fmt.Fprintf(&sb, "VALIDATED: %s\n", validated)
	fmt.Fprintf(&sb, "HASH: %s\n", CalculateHash(body))
	sb.WriteString(TagEnd)

	return sb.String()
}

// Verify checks content against the hash in its signature.
func Verify(content string) (bool, error) {
	meta, body := Extract(content)
	if meta == nil {
		return false, ErrNoSignature
	}

	if meta.Hash == "" {
		return false, ErrNoHashFound
	}

	if got := CalculateHash(body); got != meta.Hash {
		return false, fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, meta.Hash, got)
	}

	return true, nil
}

package blockhook

import (
	"bufio"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/haukened/rr-proxy/internal/dns/common/log"
	"github.com/haukened/rr-proxy/internal/dns/common/utils"
)

// ParseRules parses a newline-delimited list of domains into Rule values.
// Default is exact; leading "*." or "." indicates suffix (apex-inclusive).
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line)
// - Trims surrounding whitespace and removes trailing dots
// - Skips empty lines after trimming/stripping comments
// - De-duplicates by canonical name while preserving first-seen order
func ParseRules(r io.Reader, logger log.Logger) ([]Rule, error) {
	scanner := bufio.NewScanner(r)

	// seen key must include kind to allow both exact and suffix for same name
	seen := make(map[string]struct{})
	out := make([]Rule, 0, 256)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		// Remove potential BOM at start of first token
		line = strings.TrimPrefix(line, "\uFEFF")

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		// Strip inline comments
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}

		s := strings.TrimSpace(line)
		suffix := strings.HasPrefix(s, "*.") || strings.HasPrefix(s, ".")
		name := normalizeDomainName(s)

		if !isValidFQDN(name) {
			// skip obviously invalid tokens, email addresses and such
			logger.Debug(map[string]any{"line": lineNum, "raw": s}, "skip_invalid_fqdn")
			continue
		}

		seenKey := name
		if suffix {
			seenKey += "|suffix"
		}
		if _, ok := seen[seenKey]; ok {
			continue
		}
		seen[seenKey] = struct{}{}
		out = append(out, Rule{Name: name, Suffix: suffix})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	logger.Debug(map[string]any{"count": len(out)}, "block rules parsed")
	return out, nil
}

// ParseRulesFile reads rules from a file path.
func ParseRulesFile(path string, logger log.Logger) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseRules(f, logger)
}

// normalizeDomainName trims whitespace, removes any leading "*." or "."
// marker, and canonicalizes the remaining name.
func normalizeDomainName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.CanonicalDNSName(name)
}

// isValidFQDN checks whether the provided string is a plausible fully
// qualified domain name:
//   - The total length must not exceed 255 characters.
//   - The name must contain at least two labels.
//   - Each label must be between 1 and 63 characters long.
//   - The first label must start with a letter or number.
func isValidFQDN(name string) bool {
	if len(name) > 255 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) > 63 || len(label) == 0 {
			return false
		}
	}
	runes := []rune(labels[0])
	return unicode.IsLetter(runes[0]) || unicode.IsDigit(runes[0])
}

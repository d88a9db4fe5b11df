package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
)

const DefaultInvoiceNumberTemplate = "INV-{ULID}"

// NumberInput holds the values an invoice number template can reference.
type NumberInput struct {
	IssuedAt time.Time
	Seq      int64
	ID       ulid.ULID
}

// FormatInvoiceNumber renders template with date, sequence and ULID tokens.
// It has no side effects; the caller supplies the sequence and ULID.
func FormatInvoiceNumber(template string, in NumberInput) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}

	usesSeq := strings.Contains(template, "{SEQ")
	if usesSeq && in.Seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", in.Seq)
	}
	if strings.Contains(template, "{ULID}") && in.ID == (ulid.ULID{}) {
		return "", fmt.Errorf("invoice ulid is empty")
	}

	out := template

	// Date tokens
	out = strings.ReplaceAll(out, "{YYYY}", in.IssuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", in.IssuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", in.IssuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", in.IssuedAt.Format("02"))

	out = strings.ReplaceAll(out, "{ULID}", in.ID.String())

	if usesSeq {
		out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(in.Seq, 10))

		out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
			match := seqPadRe.FindStringSubmatch(m)
			if len(match) != 2 {
				return m
			}
			width, err := strconv.Atoi(match[1])
			if err != nil || width <= 0 {
				return m
			}
			return fmt.Sprintf("%0*d", width, in.Seq)
		})
	}

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}

	return out, nil
}

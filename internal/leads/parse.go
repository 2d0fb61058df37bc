package leads

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxReportedErrors = 100
	errorExcerptLen   = 200
)

type BlockError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
	Block string `json:"block"`
}

// Result is the outcome of parsing one export.
type Result struct {
	// Leads holds one lead per normalized phone, in first-seen order.
	Leads []Lead
	// Blocks is the number of blocks the export was split into, including blank ones.
	Blocks     int
	Parsed     int
	Errors     []BlockError
	Duplicates int
}

type Summary struct {
	Timestamp              string       `json:"timestamp"`
	TotalRecords           int          `json:"total_records"`
	SuccessfulRecords      int          `json:"successful_records"`
	FailedRecords          int          `json:"failed_records"`
	UniquePhoneNumbers     int          `json:"unique_phone_numbers"`
	DuplicatePhonesRemoved int          `json:"duplicate_phones_removed"`
	Errors                 []BlockError `json:"errors"`
}

// SummaryTimestamp is the layout of Summary.Timestamp and of output object prefixes.
const SummaryTimestamp = "20060102_150405"

func (r Result) Summary(now time.Time) Summary {
	errs := r.Errors
	if len(errs) > maxReportedErrors {
		errs = errs[:maxReportedErrors]
	}
	if errs == nil {
		errs = []BlockError{}
	}
	return Summary{
		Timestamp:              now.UTC().Format(SummaryTimestamp),
		TotalRecords:           r.Blocks,
		SuccessfulRecords:      r.Parsed,
		FailedRecords:          len(r.Errors),
		UniquePhoneNumbers:     len(r.Leads),
		DuplicatePhonesRemoved: r.Duplicates,
		Errors:                 errs,
	}
}

// SplitBlocks splits an export into lead blocks. A block ends after a "False" line that is
// followed by a line that looks like a name: non-empty and not ending in ":".
func SplitBlocks(content string) []string {
	lines := strings.Split(content, "\n")
	var blocks []string
	var cur []string
	for i, line := range lines {
		cur = append(cur, line)
		if strings.TrimSpace(line) != "False" || i+1 >= len(lines) {
			continue
		}
		next := strings.TrimSpace(lines[i+1])
		if next != "" && !strings.HasSuffix(next, ":") {
			blocks = append(blocks, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	if len(cur) > 0 {
		blocks = append(blocks, strings.Join(cur, "\n"))
	}
	return blocks
}

// Parse parses a whole export. Blocks without a phone number are reported as errors and
// later blocks with an already-seen phone are dropped.
func Parse(content string, now time.Time) Result {
	content = strings.ToValidUTF8(content, "")
	blocks := SplitBlocks(content)
	res := Result{Blocks: len(blocks)}
	seen := make(map[string]struct{})

	for i, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lead := ParseBlock(block, now)
		if lead.Phone == "" {
			res.Errors = append(res.Errors, BlockError{Index: i, Error: "Missing phone number", Block: excerpt(block)})
			continue
		}
		res.Parsed++
		if _, dup := seen[lead.Phone]; dup {
			res.Duplicates++
			continue
		}
		seen[lead.Phone] = struct{}{}
		res.Leads = append(res.Leads, lead)
	}
	return res
}

// ParseReader reads r fully and parses it.
func ParseReader(r io.Reader, now time.Time) (Result, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("leads: read export: %w", err)
	}
	return Parse(string(b), now), nil
}

func excerpt(s string) string {
	if utf8.RuneCountInString(s) <= errorExcerptLen {
		return s
	}
	return string([]rune(s)[:errorExcerptLen])
}

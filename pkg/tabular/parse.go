// Package tabular decodes uploaded delimited files into a header, a prompt
// sample and string rows, and coerces cell values for insertion.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// DefaultSampleLines is how many leading lines of a file are shown to the model.
const DefaultSampleLines = 10

var (
	// ErrUnknownEncoding is returned for an encoding label htmlindex does not know.
	ErrUnknownEncoding = errors.New("unknown text encoding")
	// ErrNoHeader is returned when the file has no header row.
	ErrNoHeader = errors.New("file has no header row")
)

// Upload is a decoded delimited file.
type Upload struct {
	// HeaderLine is the first line exactly as it appeared in the file.
	HeaderLine string
	Header     []string
	// Sample is the first N lines of the decoded text, header included.
	Sample    string
	Rows      [][]string
	Delimiter rune
}

// Parse decodes r using the WHATWG encoding label (empty means utf-8) and
// splits it into header, sample and rows. Short rows are padded, long rows are
// cut to the header width.
func Parse(r io.Reader, encodingLabel string, sampleLines int) (*Upload, error) {
	if sampleLines <= 0 {
		sampleLines = DefaultSampleLines
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	text, err := decode(raw, encodingLabel)
	if err != nil {
		return nil, err
	}
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	headerLine := strings.TrimSpace(lines[0])
	if headerLine == "" {
		return nil, ErrNoHeader
	}

	delim := sniffDelimiter(headerLine)
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse delimited file: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoHeader
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		rows = append(rows, row)
	}

	return &Upload{
		HeaderLine: headerLine,
		Header:     header,
		Sample:     sample(lines, sampleLines),
		Rows:       rows,
		Delimiter:  delim,
	}, nil
}

func decode(raw []byte, label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return string(bytes.ToValidUTF8(raw, []byte("\uFFFD"))), nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, label)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s upload: %w", label, err)
	}
	return string(out), nil
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab in the
// header line. Ties go to comma.
func sniffDelimiter(headerLine string) rune {
	best, bestCount := ',', strings.Count(headerLine, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(headerLine, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func sample(lines []string, n int) string {
	out := make([]string, 0, n)
	for _, l := range lines {
		if len(out) == n {
			break
		}
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Package pdfimport turns an uploaded visitor list into candidate rows.
//
// Extraction and parsing are separate steps. An Extractor only recovers
// text lines from a document; a RowParser maps lines to visitor fields.
// A new list layout needs a new RowParser and nothing else.
package pdfimport

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/Elizabethomito/gatepass/internal/models"
)

// Extractor recovers the text lines of a document, top to bottom.
type Extractor interface {
	Lines(path string) ([]string, error)
}

// RowParser maps text lines to visitor rows.
type RowParser interface {
	Parse(lines []string) []models.ExtractedRow
}

// PDFExtractor reads text row by row with github.com/ledongthuc/pdf.
type PDFExtractor struct{}

func (PDFExtractor) Lines(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if f != nil {
		defer f.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var lines []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, w := range row.Content {
				words = append(words, w.S)
			}
			if line := strings.TrimSpace(strings.Join(words, " ")); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}

// WhitespaceParser splits each line on whitespace and reads fields by
// position:
//
//	[n] FIRST LAST VISITOR_ID NATIONAL_ID PHONE [PURPOSE...]
//
// A leading row number is dropped. Lines with fewer than five fields and
// header lines are skipped. A line whose phone field is not a phone
// number is kept as a failed row so it shows up in the review.
type WhitespaceParser struct {
	// DefaultPurpose fills rows that carry no purpose text.
	DefaultPurpose string
}

var (
	rowNumber = regexp.MustCompile(`^\d+[.)]?$`)
	phoneLike = regexp.MustCompile(`^\+?[0-9][0-9\-]{6,}$`)
)

func isHeader(line string) bool {
	l := strings.ToLower(line)
	return strings.Contains(l, "name") && (strings.Contains(l, "phone") || strings.Contains(l, "id"))
}

func (p WhitespaceParser) Parse(lines []string) []models.ExtractedRow {
	purpose := p.DefaultPurpose
	if purpose == "" {
		purpose = "Visit"
	}

	rows := []models.ExtractedRow{}
	for _, line := range lines {
		if isHeader(line) {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) > 0 && rowNumber.MatchString(tokens[0]) {
			tokens = tokens[1:]
		}
		if len(tokens) < 5 {
			continue
		}

		row := models.ExtractedRow{
			Index:       len(rows),
			VisitorName: tokens[0] + " " + tokens[1],
			VisitorID:   tokens[2],
			NationalID:  tokens[3],
			Phone:       tokens[4],
			Purpose:     purpose,
			Raw:         line,
			Status:      models.RowPending,
		}
		if len(tokens) > 5 {
			row.Purpose = strings.Join(tokens[5:], " ")
		}
		if !phoneLike.MatchString(row.Phone) {
			row.Status = models.RowFailed
			row.Error = fmt.Sprintf("unrecognised phone number %q", row.Phone)
		}
		rows = append(rows, row)
	}
	return rows
}

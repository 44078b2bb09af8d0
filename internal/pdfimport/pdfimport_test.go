package pdfimport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Elizabethomito/gatepass/internal/models"
)

func TestWhitespaceParser(t *testing.T) {
	lines := []string{
		"Visitor list for March",
		"No Name Surname VisitorID NationalID Phone Purpose",
		"1. Jane Doe V-100 NID-200 0712345678 Contract signing",
		"2 John Smith V-101 NID-201 +254700111222",
		"3 Ann Lee V-102 NID-202 unknown Audit",
		"",
		"Page 1 of 1",
	}
	rows := WhitespaceParser{}.Parse(lines)
	require.Len(t, rows, 3)

	assert.Equal(t, models.ExtractedRow{
		Index: 0, VisitorName: "Jane Doe", VisitorID: "V-100", NationalID: "NID-200",
		Phone: "0712345678", Purpose: "Contract signing", Raw: lines[2], Status: models.RowPending,
	}, rows[0])

	assert.Equal(t, "Visit", rows[1].Purpose)
	assert.Equal(t, 1, rows[1].Index)
	assert.Equal(t, models.RowPending, rows[1].Status)

	assert.Equal(t, models.RowFailed, rows[2].Status)
	assert.Contains(t, rows[2].Error, "unknown")
}

func TestWhitespaceParserDefaultPurpose(t *testing.T) {
	rows := WhitespaceParser{DefaultPurpose: "Delivery"}.Parse([]string{"Jane Doe V1 N1 0712345678"})
	require.Len(t, rows, 1)
	assert.Equal(t, "Delivery", rows[0].Purpose)
}

func TestPDFExtractorRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o600))
	_, err := PDFExtractor{}.Lines(path)
	assert.Error(t, err)
}

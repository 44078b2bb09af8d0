package workflow

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/models"
)

const exportSheet = "Visitors"

var exportHeaders = []string{
	"Visitor Name", "Visitor ID", "National ID", "Phone", "Purpose", "Department",
	"Department Type", "Gate", "Access Type", "Scheduled Date", "Scheduled Time",
	"Duration (h)", "Status", "Approval Code", "Priority", "Group Visit", "Company",
	"Group Size", "Submitted At",
}

var exportWidths = []float64{24, 16, 16, 16, 30, 18, 16, 12, 14, 14, 14, 12, 12, 16, 10, 12, 20, 10, 20}

func exportRow(v *models.VisitorRequest) []any {
	group := "No"
	if v.IsGroupVisit {
		group = "Yes"
	}
	return []any{
		v.VisitorName, v.VisitorID, v.NationalID, v.Phone, v.Purpose, v.Department,
		string(v.DepartmentType), v.Gate, v.AccessType, v.ScheduledDate, v.ScheduledTime,
		v.Duration, string(v.Status), v.ApprovalCode, string(v.Priority), group, v.CompanyName,
		v.GroupSize, v.CreatedAt.Format("2006-01-02 15:04"),
	}
}

// ExportVisitors renders every request inside the caller's scope that
// matches f as an XLSX workbook.
func (s *Service) ExportVisitors(ctx context.Context, p *authz.Principal, f models.VisitorFilter) ([]byte, error) {
	if err := authorize(p, authz.OpExportVisitors); err != nil {
		return nil, err
	}
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	list, err := s.store.ListAllVisitors(ctx, authz.VisitorScope(p), f)
	if err != nil {
		return nil, storeErr(err, "visitor request")
	}
	data, err := renderWorkbook(list)
	if err != nil {
		return nil, storeErr(err, "export")
	}
	return data, nil
}

func renderWorkbook(list []models.VisitorRequest) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	header := make([]any, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for i, w := range exportWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(exportSheet, col, col, w); err != nil {
			return nil, fmt.Errorf("column width: %w", err)
		}
	}

	for i := range list {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := exportRow(&list[i])
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportFileName names an export taken at t.
func ExportFileName(t time.Time) string {
	return "visitors-" + t.Format(models.DateLayout) + ".xlsx"
}

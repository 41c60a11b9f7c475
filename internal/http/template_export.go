package httpapi

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"fieldtask/internal/domain"
)

// TemplatesExportHeader 模板导出表头
var TemplatesExportHeader = []string{
	"Template ID",
	"Name",
	"Default Title",
	"Division ID",
	"Active",
	"Frequency",
	"Assign To",
	"Last Generated At",
	"Next Generation At",
}

// GenerateTemplatesExport 生成模板清单 Excel 文件
func GenerateTemplatesExport(templates []*domain.Template) ([]byte, error) {
	f := excelize.NewFile()
	// Note: no deferred Close here, WriteTo needs the file open.

	sheetName := "Task Templates"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for col, header := range TemplatesExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, err
		}
	}

	for row, t := range templates {
		values := []any{
			t.TemplateID,
			t.Name,
			t.DefaultTitle,
			nullableString(t.DefaultDivisionID.Valid, t.DefaultDivisionID.String),
			t.IsActive,
			ruleSummary(t.RecurrenceRule),
			assignSummary(t.RecurrenceRule),
			nullableTime(t.LastGeneratedAt.Valid, t.LastGeneratedAt.Time),
			nullableTime(t.NextGenerationAt.Valid, t.NextGenerationAt.Time),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ruleSummary(rule *domain.RecurrenceRule) string {
	if rule == nil {
		return ""
	}
	if rule.Interval > 1 {
		return fmt.Sprintf("%s /%d", rule.Frequency, rule.Interval)
	}
	return rule.Frequency
}

func assignSummary(rule *domain.RecurrenceRule) string {
	if rule == nil {
		return ""
	}
	switch rule.AssignTo {
	case domain.AssignFixed:
		return "fixed: " + rule.FixedUserID
	case domain.AssignRotate:
		return "rotate: " + strings.Join(rule.RotationUserIDs, ", ")
	default:
		return ""
	}
}

func nullableString(valid bool, s string) string {
	if !valid {
		return ""
	}
	return s
}

func nullableTime(valid bool, t time.Time) string {
	if !valid {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

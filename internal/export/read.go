package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/theirongolddev/costroll/internal/model"
)

// FormatOf picks the format from a file name's extension.
func FormatOf(name string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no .csv or .xlsx extension", model.ErrInvalidRequest, name)
	}
	return ParseFormat(ext)
}

// ReadRows reads the first sheet of a CSV or XLSX file as text cells. The
// first row returned is the header. Rows may be ragged.
func ReadRows(r io.Reader, f Format) ([][]string, error) {
	switch f {
	case CSV:
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		rows, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("%w: reading csv: %v", model.ErrInvalidRequest, err)
		}
		if len(rows) > 0 && len(rows[0]) > 0 {
			rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
		}
		return rows, nil
	case XLSX:
		wb, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: reading xlsx: %v", model.ErrInvalidRequest, err)
		}
		defer func() { _ = wb.Close() }()
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		rows, err := wb.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("%w: unknown import format %q", model.ErrInvalidRequest, f)
}

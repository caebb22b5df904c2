package services

import (
	"fmt"
	"io"
	"strings"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	apperrors "github.com/kzhara/lathemind/backend/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// CINCOM process management sheet layout: operations start on row 12 and
// occupy every second row; front-side and back-side operations sit in fixed
// column groups.
const (
	processSheetName = "加工工程管理表"
	startRow         = 12
	rowStep          = 2
	maxRows          = 100
)

type columnGroup struct {
	correction string
	tool       string
	name       string
}

var (
	frontColumns = columnGroup{correction: "A", tool: "C", name: "E"}
	backColumns  = columnGroup{correction: "S", tool: "U", name: "W"}
)

// ProcessSheetService parses uploaded CINCOM process management sheets.
type ProcessSheetService struct{}

// NewProcessSheetService creates a process sheet parser.
func NewProcessSheetService() *ProcessSheetService {
	return &ProcessSheetService{}
}

// Parse reads an XLSX stream and extracts the front and back operation
// lists. A workbook without the expected sheet is a validation error.
func (s *ProcessSheetService) Parse(r io.Reader) (*entities.ProcessSheet, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("failed to open workbook: %v", err))
	}
	defer file.Close()

	sheetIndex, err := file.GetSheetIndex(processSheetName)
	if err != nil || sheetIndex < 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("workbook has no %q sheet", processSheetName))
	}

	front, err := parseOperations(file, frontColumns)
	if err != nil {
		return nil, err
	}
	back, err := parseOperations(file, backColumns)
	if err != nil {
		return nil, err
	}

	return &entities.ProcessSheet{
		FrontOperations: front,
		BackOperations:  back,
	}, nil
}

// parseOperations walks one column group. A fully empty row terminates the
// scan; rows without an operation name are skipped.
func parseOperations(file *excelize.File, cols columnGroup) ([]entities.Operation, error) {
	operations := []entities.Operation{}

	for offset := 0; offset < maxRows; offset++ {
		row := startRow + offset*rowStep

		correction, err := cellValue(file, cols.correction, row)
		if err != nil {
			return nil, err
		}
		tool, err := cellValue(file, cols.tool, row)
		if err != nil {
			return nil, err
		}
		name, err := cellValue(file, cols.name, row)
		if err != nil {
			return nil, err
		}

		if correction == "" && tool == "" && name == "" {
			break
		}
		if name == "" {
			continue
		}

		operations = append(operations, entities.Operation{
			Correction: correction,
			Tool:       tool,
			Name:       name,
		})
	}

	return operations, nil
}

func cellValue(file *excelize.File, column string, row int) (string, error) {
	value, err := file.GetCellValue(processSheetName, fmt.Sprintf("%s%d", column, row))
	if err != nil {
		return "", apperrors.NewInternalError("failed to read sheet cell", err)
	}
	return strings.TrimSpace(value), nil
}

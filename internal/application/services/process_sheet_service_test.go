package services

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	apperrors "github.com/kzhara/lathemind/backend/pkg/errors"
)

type sheetOp struct {
	correction string
	tool       string
	name       string
}

func buildProcessWorkbook(t *testing.T, front, back []sheetOp) *bytes.Buffer {
	t.Helper()

	file := excelize.NewFile()
	_, err := file.NewSheet(processSheetName)
	require.NoError(t, err)

	write := func(cols columnGroup, ops []sheetOp) {
		for i, op := range ops {
			row := startRow + i*rowStep
			require.NoError(t, file.SetCellValue(processSheetName, fmt.Sprintf("%s%d", cols.correction, row), op.correction))
			require.NoError(t, file.SetCellValue(processSheetName, fmt.Sprintf("%s%d", cols.tool, row), op.tool))
			require.NoError(t, file.SetCellValue(processSheetName, fmt.Sprintf("%s%d", cols.name, row), op.name))
		}
	}
	write(frontColumns, front)
	write(backColumns, back)

	buf, err := file.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParse_FrontAndBackOperations(t *testing.T) {
	buf := buildProcessWorkbook(t,
		[]sheetOp{
			{correction: "01", tool: "T0101", name: "OD rough"},
			{correction: "02", tool: "T0303", name: "OD finish"},
		},
		[]sheetOp{
			{correction: "51", tool: "T2121", name: "Back face"},
		},
	)

	sheet, err := NewProcessSheetService().Parse(buf)
	require.NoError(t, err)

	require.Len(t, sheet.FrontOperations, 2)
	assert.Equal(t, entities.Operation{Correction: "01", Tool: "T0101", Name: "OD rough"}, sheet.FrontOperations[0])
	assert.Equal(t, "OD finish", sheet.FrontOperations[1].Name)

	require.Len(t, sheet.BackOperations, 1)
	assert.Equal(t, "Back face", sheet.BackOperations[0].Name)
	assert.False(t, sheet.IsEmpty())
}

func TestParse_SkipsUnnamedRowsAndStopsAtBlank(t *testing.T) {
	file := excelize.NewFile()
	_, err := file.NewSheet(processSheetName)
	require.NoError(t, err)

	// row 12: named, row 14: tool but no name, row 16: blank terminates,
	// row 18: named but unreachable
	require.NoError(t, file.SetCellValue(processSheetName, "E12", "OD rough"))
	require.NoError(t, file.SetCellValue(processSheetName, "C14", "T0505"))
	require.NoError(t, file.SetCellValue(processSheetName, "E18", "never parsed"))

	buf, err := file.WriteToBuffer()
	require.NoError(t, err)

	sheet, err := NewProcessSheetService().Parse(buf)
	require.NoError(t, err)

	require.Len(t, sheet.FrontOperations, 1)
	assert.Equal(t, "OD rough", sheet.FrontOperations[0].Name)
}

func TestParse_MissingProcessSheet(t *testing.T) {
	file := excelize.NewFile()
	buf, err := file.WriteToBuffer()
	require.NoError(t, err)

	_, err = NewProcessSheetService().Parse(buf)
	assert.True(t, apperrors.IsValidation(err))
}

func TestParse_NotAWorkbook(t *testing.T) {
	_, err := NewProcessSheetService().Parse(bytes.NewBufferString("not an xlsx file"))
	assert.True(t, apperrors.IsValidation(err))
}

func TestParse_EmptySheet(t *testing.T) {
	buf := buildProcessWorkbook(t, nil, nil)

	sheet, err := NewProcessSheetService().Parse(buf)
	require.NoError(t, err)
	assert.True(t, sheet.IsEmpty())
}

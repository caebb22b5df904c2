package entities

// Operation is one row of a CINCOM process management sheet.
type Operation struct {
	Correction string `json:"correction"` // offset number, e.g. A12 / S12
	Tool       string `json:"tool"`       // tool number, e.g. T1 / T11
	Name       string `json:"name"`       // operation name, e.g. ZAGURI
}

// ProcessSheet is the parsed content of an uploaded process management
// sheet, split into front-side and back-side operations.
type ProcessSheet struct {
	FrontOperations []Operation `json:"front_operations"`
	BackOperations  []Operation `json:"back_operations"`
}

// IsEmpty reports whether the sheet contained no operations at all.
func (p *ProcessSheet) IsEmpty() bool {
	return len(p.FrontOperations) == 0 && len(p.BackOperations) == 0
}

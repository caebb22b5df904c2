package entities

import (
	"regexp"
	"strings"
)

var (
	programNumberRe = regexp.MustCompile(`^O\d+`)
	gCodeRe         = regexp.MustCompile(`G\d+\.?\d*`)
	mCodeRe         = regexp.MustCompile(`M\d+`)
)

// NCBlock is a single parsed line of NC code.
type NCBlock struct {
	LineNumber int      `json:"line_number"`
	Content    string   `json:"content"`
	GCodes     []string `json:"g_codes,omitempty"`
	MCodes     []string `json:"m_codes,omitempty"`
	IsComment  bool     `json:"is_comment"`
}

// ParseNCBlock parses one raw NC line. Comment lines open with '(' or ';'
// and carry no codes.
func ParseNCBlock(lineNumber int, content string) NCBlock {
	content = strings.TrimSpace(content)
	block := NCBlock{
		LineNumber: lineNumber,
		Content:    content,
		IsComment:  strings.HasPrefix(content, "(") || strings.HasPrefix(content, ";"),
	}
	if !block.IsComment {
		upper := strings.ToUpper(content)
		block.GCodes = gCodeRe.FindAllString(upper, -1)
		block.MCodes = mCodeRe.FindAllString(upper, -1)
	}
	return block
}

// NCProgram wraps generated program text with line-oriented helpers.
type NCProgram struct {
	Code string
}

// Lines splits the program into trimmed, non-empty-aware lines. Trailing
// whitespace-only lines are dropped; interior blank lines are kept so line
// numbers stay meaningful.
func (p NCProgram) Lines() []string {
	return strings.Split(strings.TrimSpace(p.Code), "\n")
}

// Blocks parses every line of the program.
func (p NCProgram) Blocks() []NCBlock {
	lines := p.Lines()
	blocks := make([]NCBlock, 0, len(lines))
	for i, line := range lines {
		blocks = append(blocks, ParseNCBlock(i+1, line))
	}
	return blocks
}

// ExtractProgramNumber returns the O-number line token, or "" when the
// program carries none.
func (p NCProgram) ExtractProgramNumber() string {
	for _, line := range p.Lines() {
		line = strings.TrimSpace(line)
		if m := programNumberRe.FindString(line); m != "" {
			return m
		}
	}
	return ""
}

// HasProgramNumber reports whether the first significant (non-blank,
// non-comment) line is an O-number line. Leading comments are tolerated.
func (p NCProgram) HasProgramNumber() bool {
	for _, block := range p.Blocks() {
		if block.Content == "" || block.IsComment {
			continue
		}
		return programNumberRe.MatchString(block.Content)
	}
	return false
}

// HasInstruction reports whether the program contains at least one motion
// (G word) or auxiliary (M word) instruction.
func (p NCProgram) HasInstruction() bool {
	for _, block := range p.Blocks() {
		if len(block.GCodes) > 0 || len(block.MCodes) > 0 {
			return true
		}
	}
	return false
}

// HasEndCode reports whether the program terminates with M30 or M02.
func (p NCProgram) HasEndCode() bool {
	for _, block := range p.Blocks() {
		for _, m := range block.MCodes {
			if m == "M30" || m == "M02" {
				return true
			}
		}
	}
	return false
}

// DangerousCodes returns the coordinate-redefinition words present in the
// program that an operator should review before running it.
func (p NCProgram) DangerousCodes() []string {
	var found []string
	seen := make(map[string]bool)
	for _, block := range p.Blocks() {
		for _, g := range block.GCodes {
			if (g == "G10" || g == "G92") && !seen[g] {
				seen[g] = true
				found = append(found, g)
			}
		}
	}
	return found
}

package gemini

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
)

const analysisPrompt = `You are an expert CINCOM NC lathe programmer.
Analyze the provided engineering drawing and extract the following as JSON.

Fields:
1. process_type: one of outer_diameter / inner_diameter / threading / facing / grooving / other
2. features: list of detected geometric features (taper, chamfer, thread, groove, radius, bore, ...)
3. dimensions: map of principal dimensions in mm (diameter_start, diameter_end, length, taper_angle, radius where present)
4. tolerances: tolerance callouts if visible, else null
5. surface_finish: surface roughness callouts if visible, else null

Output ONLY the JSON, fenced as a json code block, no explanation:

` + "```json" + `
{
  "process_type": "...",
  "features": ["...", "..."],
  "dimensions": {
    "diameter_start": 0.0,
    "diameter_end": 0.0,
    "length": 0.0
  },
  "tolerances": null,
  "surface_finish": null
}
` + "```" + `
`

// buildGenerationPrompt renders the full generation prompt: task directive,
// reference exemplars, then the output requirements for the lathe program.
func buildGenerationPrompt(genCtx *entities.GenerationContext) string {
	var b strings.Builder

	b.WriteString("You are an expert CINCOM NC lathe programmer.\n")
	b.WriteString("Generate an NC program for the machining task below.\n\n")

	b.WriteString("## Task\n")
	b.WriteString(genCtx.Directive)
	b.WriteString("\n\n")

	b.WriteString("## Reference sample programs\n")
	b.WriteString(formatExemplars(genCtx.Exemplars))
	b.WriteString("\n")

	b.WriteString(`## Requirements
1. FANUC-compatible G-code
2. Program number line first, starting from O0001
3. Include safe approach and retract moves
4. Include a G28 reference point return
5. End the program with M30

## Output
Output only the NC program, fenced in a code block (` + "```nc ... ```" + `). No explanation.
`)

	return b.String()
}

// formatExemplars renders retrieved samples the way the generation prompt
// expects them, best match first.
func formatExemplars(exemplars []entities.Exemplar) string {
	if len(exemplars) == 0 {
		return "(no reference samples available)\n"
	}

	var b strings.Builder
	for _, ex := range exemplars {
		name := ex.Metadata.Name
		if name == "" {
			name = ex.SampleID
		}
		fmt.Fprintf(&b, "### Sample: %s\n", name)
		fmt.Fprintf(&b, "- machining type: %s\n", ex.Metadata.MachiningType)
		fmt.Fprintf(&b, "- material: %s\n", ex.Metadata.Material)
		if ex.Metadata.SpindleSpeed > 0 {
			fmt.Fprintf(&b, "- spindle speed: %g rpm\n", ex.Metadata.SpindleSpeed)
		}
		if ex.Metadata.FeedRate > 0 {
			fmt.Fprintf(&b, "- feed rate: %g mm/rev\n", ex.Metadata.FeedRate)
		}
		fmt.Fprintf(&b, "```nc\n%s\n```\n\n", ex.ProgramCode)
	}
	return b.String()
}

var (
	jsonBlockRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	codeBlockRe = regexp.MustCompile("(?s)```(?:nc)?\\s*(.*?)\\s*```")
)

// parseAnalysisResponse pulls the JSON payload out of a model response,
// tolerating both fenced and bare JSON.
func parseAnalysisResponse(text string) (*entities.DrawingAnalysis, error) {
	payload := text
	if m := jsonBlockRe.FindStringSubmatch(text); m != nil {
		payload = m[1]
	}
	payload = strings.TrimSpace(payload)

	var raw struct {
		ProcessType   string             `json:"process_type"`
		Features      []string           `json:"features"`
		Dimensions    map[string]float64 `json:"dimensions"`
		Tolerances    string             `json:"tolerances"`
		SurfaceFinish string             `json:"surface_finish"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	analysis := &entities.DrawingAnalysis{
		Features:      raw.Features,
		Dimensions:    raw.Dimensions,
		Tolerances:    raw.Tolerances,
		SurfaceFinish: raw.SurfaceFinish,
	}
	if mt, err := entities.ParseMachiningType(raw.ProcessType); err == nil {
		analysis.ProcessType = mt
	} else {
		analysis.ProcessType = entities.MachiningTypeOther
	}
	return analysis, nil
}

// extractCodeBlock strips a Markdown fence from a program response. Bare
// responses come back unchanged apart from whitespace trimming.
func extractCodeBlock(text string) string {
	if m := codeBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

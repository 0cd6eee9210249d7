// Package assembler formats retrieved fragments and the requesting
// company's profile into a single prompt-ready context string.
package assembler

import (
	"fmt"
	"sort"
	"strings"
)

// CompanyProfile is the owner's branding block prepended to every
// generation.
type CompanyProfile struct {
	Name         string
	Tagline      string
	Address      string
	License      string
	ContactName  string
	ContactEmail string
	ContactPhone string
}

// FormatCompanyProfile renders the fixed-format profile header. The
// embedded instruction is a correctness requirement: the model must not
// pull "our company" details from any other part of the context.
func FormatCompanyProfile(p CompanyProfile) string {
	if p.Name == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("=== BIDDING COMPANY PROFILE ===\n")
	b.WriteString(fmt.Sprintf("Company Name: %s\n", p.Name))
	if p.Tagline != "" {
		b.WriteString(fmt.Sprintf("Tagline: %s\n", p.Tagline))
	}
	if p.Address != "" {
		b.WriteString(fmt.Sprintf("Address: %s\n", p.Address))
	}
	if p.License != "" {
		b.WriteString(fmt.Sprintf("License: %s\n", p.License))
	}
	if contact := formatContact(p); contact != "" {
		b.WriteString(fmt.Sprintf("Contact: %s\n", contact))
	}
	b.WriteString("IMPORTANT: When referring to \"our company\" in the bid, use ONLY the profile above. Do not attribute company details from any other source.\n")
	b.WriteString("=== END COMPANY PROFILE ===")

	return b.String()
}

func formatContact(p CompanyProfile) string {
	parts := make([]string, 0, 3)
	if p.ContactName != "" {
		parts = append(parts, p.ContactName)
	}
	if p.ContactEmail != "" {
		parts = append(parts, p.ContactEmail)
	}
	if p.ContactPhone != "" {
		parts = append(parts, p.ContactPhone)
	}
	return strings.Join(parts, ", ")
}

// Dimension is one extracted measurement from a technical drawing.
type Dimension struct {
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Location  string  `json:"location,omitempty"`
	Reference string  `json:"reference,omitempty"`
}

// Material is one extracted material specification.
type Material struct {
	Name          string  `json:"name"`
	Category      string  `json:"category,omitempty"`
	Grade         string  `json:"grade,omitempty"`
	Specification string  `json:"specification,omitempty"`
	Quantity      float64 `json:"quantity,omitempty"`
	Unit          string  `json:"unit,omitempty"`
	Standard      string  `json:"standard,omitempty"`
}

// Component is one extracted building component.
type Component struct {
	Type          string `json:"type"`
	Name          string `json:"name,omitempty"`
	Size          string `json:"size,omitempty"`
	Count         int    `json:"count,omitempty"`
	Location      string `json:"location,omitempty"`
	Specification string `json:"specification,omitempty"`
	Material      string `json:"material,omitempty"`
}

// DrawingExtraction is the structured output of technical drawing
// analysis attached to a project.
type DrawingExtraction struct {
	DrawingID       string            `json:"drawingId"`
	DocumentType    string            `json:"documentType,omitempty"`
	ProjectPhase    string            `json:"projectPhase,omitempty"`
	Dimensions      []Dimension       `json:"dimensions,omitempty"`
	Materials       []Material        `json:"materials,omitempty"`
	Components      []Component       `json:"components,omitempty"`
	Quantities      map[string]string `json:"quantities,omitempty"`
	Specifications  []string          `json:"specifications,omitempty"`
	Standards       []string          `json:"standards,omitempty"`
	Annotations     []string          `json:"annotations,omitempty"`
	ConfidenceScore float64           `json:"confidenceScore,omitempty"`
}

// FormatDrawingExtractions renders one deterministic, fully-labeled
// block per record. Absent fields are omitted rather than printed as
// empty placeholders.
func FormatDrawingExtractions(records []DrawingExtraction) string {
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fmt.Sprintf("--- Technical Drawing %d", i+1))
		if rec.DrawingID != "" {
			b.WriteString(fmt.Sprintf(" (%s)", rec.DrawingID))
		}
		b.WriteString(" ---")

		if rec.DocumentType != "" {
			b.WriteString(fmt.Sprintf("\nDocument Type: %s", rec.DocumentType))
		}
		if rec.ProjectPhase != "" {
			b.WriteString(fmt.Sprintf("\nProject Phase: %s", rec.ProjectPhase))
		}

		for _, d := range rec.Dimensions {
			line := fmt.Sprintf("\nDimension: %s = %g %s", d.Type, d.Value, d.Unit)
			if d.Location != "" {
				line += fmt.Sprintf(" at %s", d.Location)
			}
			if d.Reference != "" {
				line += fmt.Sprintf(" (ref %s)", d.Reference)
			}
			b.WriteString(line)
		}

		for _, m := range rec.Materials {
			line := fmt.Sprintf("\nMaterial: %s", m.Name)
			if m.Category != "" {
				line += fmt.Sprintf(" [%s]", m.Category)
			}
			if m.Grade != "" {
				line += fmt.Sprintf(", grade %s", m.Grade)
			}
			if m.Quantity > 0 {
				line += fmt.Sprintf(", qty %g", m.Quantity)
				if m.Unit != "" {
					line += fmt.Sprintf(" %s", m.Unit)
				}
			}
			if m.Specification != "" {
				line += fmt.Sprintf(", spec %s", m.Specification)
			}
			if m.Standard != "" {
				line += fmt.Sprintf(", standard %s", m.Standard)
			}
			b.WriteString(line)
		}

		for _, c := range rec.Components {
			line := fmt.Sprintf("\nComponent: %s", c.Type)
			if c.Name != "" {
				line += fmt.Sprintf(" %q", c.Name)
			}
			if c.Size != "" {
				line += fmt.Sprintf(", size %s", c.Size)
			}
			if c.Count > 0 {
				line += fmt.Sprintf(", count %d", c.Count)
			}
			if c.Location != "" {
				line += fmt.Sprintf(" at %s", c.Location)
			}
			if c.Material != "" {
				line += fmt.Sprintf(", material %s", c.Material)
			}
			if c.Specification != "" {
				line += fmt.Sprintf(", spec %s", c.Specification)
			}
			b.WriteString(line)
		}

		writeList(&b, "Quantities", sortedQuantityLines(rec.Quantities))
		writeList(&b, "Specifications", rec.Specifications)
		writeList(&b, "Standards", rec.Standards)
		writeList(&b, "Annotations", rec.Annotations)

		if rec.ConfidenceScore > 0 {
			b.WriteString(fmt.Sprintf("\nExtraction Confidence: %.0f%%", rec.ConfidenceScore))
		}
	}

	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	for _, item := range items {
		if item == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("\n%s: %s", label, item))
	}
}

func sortedQuantityLines(quantities map[string]string) []string {
	if len(quantities) == 0 {
		return nil
	}
	keys := make([]string, 0, len(quantities))
	for k := range quantities {
		keys = append(keys, k)
	}
	// Deterministic ordering regardless of map iteration
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s = %s", k, quantities[k]))
	}
	return lines
}

package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses a --format value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text or json)", s)
	}
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	winnerStyle  = cellStyle.Bold(true)
	mutedStyle   = cellStyle.Faint(true)
	problemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	format Format
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer, format Format) *Formatter {
	return &Formatter{
		writer: writer,
		format: format,
	}
}

func (f *Formatter) json(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatRegistry lists every contract and its bindings.
func (f *Formatter) FormatRegistry(reg RegistryDTO) error {
	if f.format == FormatJSON {
		return f.json(reg)
	}

	var rows [][]string
	winners := make(map[int]bool)
	for _, c := range reg.Contracts {
		card := c.Cardinality
		if c.Inherited {
			card += " (inherited)"
		}
		if len(c.Bindings) == 0 {
			rows = append(rows, []string{c.ID, card, "-", "", "", configSummary(c.Config)})
			continue
		}
		for i, b := range c.Bindings {
			id, cardCol, cfg := c.ID, card, ""
			if i > 0 {
				id, cardCol = "", ""
			}
			if i == 0 {
				cfg = configSummary(c.Config)
			}
			if b.Winner {
				winners[len(rows)] = true
			}
			rows = append(rows, []string{id, cardCol, b.Implementation, b.Origin, strconv.Itoa(b.Priority), cfg})
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("CONTRACT", "CARDINALITY", "IMPLEMENTATION", "ORIGIN", "PRIORITY", "CONFIG").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case winners[row] && col == 2:
				return winnerStyle
			case col == 5:
				return mutedStyle
			default:
				return cellStyle
			}
		})

	if _, err := fmt.Fprintln(f.writer, t.String()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f.writer, "registry %s: %d contracts\n", reg.ID, len(reg.Contracts))
	if err != nil {
		return err
	}
	return f.writeProblems("warnings", reg.Warnings)
}

// FormatContract shows one entry in detail.
func (f *Formatter) FormatContract(c ContractDTO) error {
	if f.format == FormatJSON {
		return f.json(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("contract:"), c.ID)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("cardinality:"), c.Cardinality)
	if c.Capability != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("capability:"), c.Capability)
	}
	if c.Description != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("description:"), c.Description)
	}
	if c.Origin != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("declared by:"), c.Origin)
	}
	if c.Implicit {
		b.WriteString("implicit: declared on first reference\n")
	}
	if c.Inherited {
		b.WriteString("inherited from parent registry\n")
	}

	b.WriteString(labelStyle.Render("bindings:") + "\n")
	if len(c.Bindings) == 0 {
		b.WriteString("  (config only)\n")
	}
	for _, binding := range c.Bindings {
		marker := " "
		if binding.Winner {
			marker = "*"
		}
		fmt.Fprintf(&b, "  %s %-40s priority=%d origin=%s\n", marker, binding.Implementation, binding.Priority, binding.Origin)
	}

	if len(c.Config) > 0 {
		b.WriteString(labelStyle.Render("config:") + "\n")
		for _, v := range c.Config {
			fmt.Fprintf(&b, "  %s = %s  (%s)\n", v.Key, formatValue(v.Value), strings.Join(v.Origins, ", "))
		}
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// CheckReport is the result of registry:check.
type CheckReport struct {
	OK        bool         `json:"ok"`
	Registry  string       `json:"registry,omitempty"`
	Contracts int          `json:"contracts"`
	Bindings  int          `json:"bindings"`
	Problems  []ProblemDTO `json:"problems,omitempty"`
	Warnings  []ProblemDTO `json:"warnings,omitempty"`
}

// FormatCheck reports problems found while building.
func (f *Formatter) FormatCheck(r CheckReport) error {
	if f.format == FormatJSON {
		return f.json(r)
	}
	if r.OK {
		if _, err := fmt.Fprintf(f.writer, "ok: %d contracts, %d bindings\n", r.Contracts, r.Bindings); err != nil {
			return err
		}
	} else if err := f.writeProblems("problems", r.Problems); err != nil {
		return err
	}
	return f.writeProblems("warnings", r.Warnings)
}

func (f *Formatter) writeProblems(label string, problems []ProblemDTO) error {
	if len(problems) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s:\n", len(problems), label)
	for _, p := range problems {
		fmt.Fprintf(&b, "  %s %s\n", problemStyle.Render("["+p.Kind+"]"), p.Message)
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// FormatDiff writes a registry diff.
func (f *Formatter) FormatDiff(d Diff) error {
	if f.format == FormatJSON {
		return f.json(d)
	}
	if d.Empty() {
		_, err := fmt.Fprintln(f.writer, "registries are equivalent")
		return err
	}
	_, err := io.WriteString(f.writer, d.Unified())
	return err
}

// Format writes any value as JSON, or with %v in text mode.
func (f *Formatter) Format(v any) error {
	if f.format == FormatJSON {
		return f.json(v)
	}
	_, err := fmt.Fprintln(f.writer, v)
	return err
}

func configSummary(values []ConfigValueDTO) string {
	keys := make([]string, len(values))
	for i, v := range values {
		keys[i] = v.Key
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func formatValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

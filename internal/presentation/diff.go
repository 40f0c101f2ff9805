package presentation

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffLine is one line of a registry diff. Op is "+", "-" or " ".
type DiffLine struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

// Diff compares two registries by their canonical text form.
type Diff struct {
	From  string     `json:"from"`
	To    string     `json:"to"`
	Lines []DiffLine `json:"lines"`
}

// Empty reports whether the registries resolve identically.
func (d Diff) Empty() bool {
	for _, l := range d.Lines {
		if l.Op != " " {
			return false
		}
	}
	return true
}

// Changes returns only added and removed lines.
func (d Diff) Changes() []DiffLine {
	var out []DiffLine
	for _, l := range d.Lines {
		if l.Op != " " {
			out = append(out, l)
		}
	}
	return out
}

// Unified renders the diff with ---/+++ headers, keeping contract headers as
// context for changed lines.
func (d Diff) Unified() string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", d.From, d.To)
	for i, l := range d.Lines {
		if l.Op == " " && !strings.HasPrefix(l.Text, "contract ") {
			continue
		}
		if l.Op == " " && !changedBefore(d.Lines, i+1) {
			continue
		}
		b.WriteString(l.Op)
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// changedBefore reports whether a change follows i before the next contract header.
func changedBefore(lines []DiffLine, i int) bool {
	for ; i < len(lines); i++ {
		if lines[i].Op != " " {
			return true
		}
		if strings.HasPrefix(lines[i].Text, "contract ") {
			return false
		}
	}
	return false
}

// DiffRegistries diffs two registries line by line. Registry IDs are
// excluded from the comparison since every build gets a fresh one.
func DiffRegistries(from, to RegistryDTO, fromLabel, toLabel string) Diff {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(Canonical(from), Canonical(to))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	out := Diff{From: fromLabel, To: toLabel}
	for _, d := range diffs {
		op := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = "+"
		case diffmatchpatch.DiffDelete:
			op = "-"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			line = strings.TrimSuffix(line, "\n")
			if line == "" {
				continue
			}
			out.Lines = append(out.Lines, DiffLine{Op: op, Text: line})
		}
	}
	return out
}

// Canonical renders a registry as stable text: one header per contract,
// then its bindings in resolution order, then its config keys.
func Canonical(reg RegistryDTO) string {
	var b strings.Builder
	for _, c := range reg.Contracts {
		fmt.Fprintf(&b, "contract %s cardinality=%s", c.ID, c.Cardinality)
		if c.Capability != "" {
			fmt.Fprintf(&b, " capability=%s", c.Capability)
		}
		if c.InitOrder != 0 {
			fmt.Fprintf(&b, " init_order=%d", c.InitOrder)
		}
		b.WriteByte('\n')
		for _, bnd := range c.Bindings {
			winner := ""
			if bnd.Winner {
				winner = " winner"
			}
			fmt.Fprintf(&b, "  binding %s origin=%s priority=%d%s\n", bnd.Implementation, bnd.Origin, bnd.Priority, winner)
		}
		for _, v := range c.Config {
			fmt.Fprintf(&b, "  config %s=%s\n", v.Key, formatValue(v.Value))
		}
	}
	return b.String()
}

package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/panbanda/relocate/internal/output"
	"github.com/panbanda/relocate/pkg/diagnostic"
	"github.com/panbanda/relocate/pkg/mark"
	"github.com/panbanda/relocate/pkg/reference"
)

// DiagnosticRow is the flattened form of a diagnostic used in reports.
type DiagnosticRow struct {
	Kind       string   `json:"kind"`
	ID         string   `json:"id"`
	Location   string   `json:"location"`
	Parameters []string `json:"parameters"`
	Message    string   `json:"message"`
}

func rows(diags []diagnostic.Diagnostic) []DiagnosticRow {
	out := make([]DiagnosticRow, len(diags))
	for i, d := range diags {
		params := make([]string, len(d.Params))
		for j, p := range d.Params {
			if p == nil {
				params[j] = "?"
				continue
			}
			params[j] = fmt.Sprint(p)
		}
		out[i] = DiagnosticRow{
			Kind:       strings.ToLower(d.Kind().String()),
			ID:         d.Type.ID,
			Location:   d.Location.String(),
			Parameters: params,
			Message:    d.Message(),
		}
	}
	return out
}

func kindOf(s string) diagnostic.Kind {
	if s == strings.ToLower(diagnostic.Warning.String()) {
		return diagnostic.Warning
	}
	return diagnostic.Error
}

// Mark is the outcome of a mark run: counters and the delivered
// diagnostics.
type Mark struct {
	Result      *mark.Result    `json:"result"`
	Diagnostics []DiagnosticRow `json:"diagnostics"`
}

// NewMark builds the report for a finished run.
func NewMark(res *mark.Result, diags []diagnostic.Diagnostic) *Mark {
	return &Mark{Result: res, Diagnostics: rows(diags)}
}

func (m *Mark) RenderData() any { return m }

func (m *Mark) summary() *output.Table {
	r := m.Result
	return output.NewTable("Summary", []string{"Metric", "Count"}, [][]string{
		{"Classes kept", strconv.Itoa(r.Classes)},
		{"Methods kept", strconv.Itoa(r.Methods)},
		{"Fields kept", strconv.Itoa(r.Fields)},
		{"References queued", strconv.Itoa(r.References)},
		{"References dequeued", strconv.Itoa(r.Dequeued)},
		{"Errors", strconv.Itoa(r.Errors)},
		{"Warnings", strconv.Itoa(r.Warnings)},
		{"Suppressed", strconv.Itoa(r.Suppressed)},
	}, nil, nil)
}

func (m *Mark) diagnostics(colored bool) *output.Table {
	body := make([][]string, len(m.Diagnostics))
	for i, d := range m.Diagnostics {
		kind := d.Kind
		if colored {
			kind = output.KindColor(kindOf(d.Kind), kind)
		}
		body[i] = []string{kind, d.ID, d.Location, d.Message}
	}
	return output.NewTable("Diagnostics", []string{"Kind", "ID", "Location", "Message"}, body, nil, nil)
}

func (m *Mark) report(colored bool) *output.Report {
	r := &output.Report{Title: "Reachability", Sections: []output.Renderable{m.summary()}}
	if len(m.Diagnostics) > 0 {
		r.Sections = append(r.Sections, m.diagnostics(colored))
	}
	return r
}

func (m *Mark) RenderText(w io.Writer, colored bool) error {
	return m.report(colored).RenderText(w, colored)
}

func (m *Mark) RenderMarkdown(w io.Writer) error {
	return m.report(false).RenderMarkdown(w)
}

// Step is one link of a why-kept chain.
type Step struct {
	Kind   string `json:"kind"`
	Symbol string `json:"symbol"`
}

// Why explains how a symbol was reached from the roots.
type Why struct {
	Target string `json:"target"`
	Chain  []Step `json:"chain"`
}

// NewWhy builds the report for a chain returned by Graph.WhyKept.
func NewWhy(target reference.Reference, chain []reference.Reference) *Why {
	w := &Why{Target: target.String(), Chain: make([]Step, len(chain))}
	for i, r := range chain {
		w.Chain[i] = Step{Kind: r.Kind().String(), Symbol: r.String()}
	}
	return w
}

func (w *Why) RenderData() any { return w }

func (w *Why) table() *output.Table {
	body := make([][]string, len(w.Chain))
	for i, s := range w.Chain {
		body[i] = []string{strconv.Itoa(i), s.Kind, s.Symbol}
	}
	return output.NewTable("Why "+w.Target+" is kept", []string{"Step", "Kind", "Symbol"}, body, nil, nil)
}

func (w *Why) RenderText(out io.Writer, colored bool) error { return w.table().RenderText(out, colored) }
func (w *Why) RenderMarkdown(out io.Writer) error           { return w.table().RenderMarkdown(out) }

// Cycles lists groups of kept classes that reference each other.
type Cycles struct {
	Cycles [][]string `json:"cycles"`
}

func (c *Cycles) RenderData() any { return c }

func (c *Cycles) section() *output.Section {
	s := &output.Section{Title: "Class cycles"}
	if len(c.Cycles) == 0 {
		s.Content = "No cycles found."
		return s
	}
	for i, cycle := range c.Cycles {
		s.Sections = append(s.Sections, output.Section{
			Title:   fmt.Sprintf("Cycle %d (%d classes)", i+1, len(cycle)),
			Content: strings.Join(cycle, "\n"),
		})
	}
	return s
}

func (c *Cycles) RenderText(w io.Writer, colored bool) error { return c.section().RenderText(w, colored) }
func (c *Cycles) RenderMarkdown(w io.Writer) error           { return c.section().RenderMarkdown(w) }

// Hubs lists the most central kept classes.
type Hubs struct {
	Hubs []Rank `json:"hubs"`
}

func (h *Hubs) RenderData() any { return h }

func (h *Hubs) table() *output.Table {
	body := make([][]string, len(h.Hubs))
	for i, r := range h.Hubs {
		body[i] = []string{r.Class, strconv.FormatFloat(r.Score, 'f', 4, 64), strconv.Itoa(r.In)}
	}
	return output.NewTable("Hub classes", []string{"Class", "PageRank", "Referenced by"}, body, nil, nil)
}

func (h *Hubs) RenderText(w io.Writer, colored bool) error { return h.table().RenderText(w, colored) }
func (h *Hubs) RenderMarkdown(w io.Writer) error           { return h.table().RenderMarkdown(w) }

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

const rule = "═══════════════════════════════════════════════════════════"

// Renderer writes query results as JSON, Markdown and terminal summaries
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer. The footer adds a review notice to Markdown.
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes result as indented JSON
func (r *Renderer) RenderJSON(result *model.QueryResult, path string) error {
	return writeJSON(result, path)
}

// RenderBatchJSON writes batch items as indented JSON
func (r *Renderer) RenderBatchJSON(items []model.BatchItem, path string) error {
	if items == nil {
		items = []model.BatchItem{}
	}
	return writeJSON(items, path)
}

// RenderMarkdown writes the Markdown claim report
func (r *Renderer) RenderMarkdown(result *model.QueryResult, path string) error {
	return writeFile(path, []byte(r.Markdown(result)))
}

// Markdown renders a claim analysis report
func (r *Renderer) Markdown(result *model.QueryResult) string {
	var b strings.Builder
	v := result.Verdict

	b.WriteString("# Insurance Claim Analysis Report\n\n")
	if !result.Timestamp.IsZero() {
		fmt.Fprintf(&b, "_Generated: %s_\n\n", result.Timestamp.Format("2006-01-02 15:04:05"))
	}

	b.WriteString("## Query\n\n")
	fmt.Fprintf(&b, "> %s\n\n", result.Query)

	b.WriteString("## Decision\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Status | **%s** |\n", decisionLabel(v.Approved))
	fmt.Fprintf(&b, "| Amount | %s |\n", formatAmount(v.Amount))
	fmt.Fprintf(&b, "| Confidence | %s |\n", strings.ToUpper(string(v.Confidence)))
	fmt.Fprintf(&b, "| Processing time | %.2fs |\n\n", result.ProcessingTimeSeconds)

	b.WriteString("### Reasoning\n\n")
	fmt.Fprintf(&b, "%s\n\n", v.Reasoning)

	if len(v.RelevantClauses) > 0 {
		b.WriteString("### Relevant Clauses\n\n")
		for _, c := range v.RelevantClauses {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	if len(v.RiskFactors) > 0 {
		b.WriteString("### Risk Factors\n\n")
		for _, rf := range v.RiskFactors {
			fmt.Fprintf(&b, "- %s\n", rf)
		}
		b.WriteString("\n")
	}

	a := result.Attributes
	b.WriteString("## Claim Details\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Age | %s |\n", intOrDash(a.Age))
	fmt.Fprintf(&b, "| Gender | %s |\n", stringOrDash(a.Gender))
	fmt.Fprintf(&b, "| Procedure | %s |\n", stringOrDash(a.Procedure))
	fmt.Fprintf(&b, "| Location | %s |\n", stringOrDash(a.Location))
	if a.PolicyDurationMonths != nil {
		fmt.Fprintf(&b, "| Policy duration | %d months |\n", *a.PolicyDurationMonths)
	} else {
		b.WriteString("| Policy duration | - |\n")
	}
	fmt.Fprintf(&b, "| Emergency | %s |\n\n", yesNo(a.IsEmergency))

	if len(result.Validation.MissingFields) > 0 {
		fmt.Fprintf(&b, "**Missing fields:** %s\n\n", strings.Join(result.Validation.MissingFields, ", "))
	}

	if len(result.RetrievedClauses) > 0 {
		b.WriteString("## Retrieved Policy Clauses\n\n")
		for i, c := range result.RetrievedClauses {
			fmt.Fprintf(&b, "### %d. %s (similarity %.2f)\n\n", i+1, sectionName(c.Section), c.Similarity)
			fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(c.Text))
		}
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString("_This report is decision support only. Final claim decisions require review by a qualified assessor._\n")
	}

	return b.String()
}

// RenderSummary prints a short terminal summary of result to w
func (r *Renderer) RenderSummary(w io.Writer, result *model.QueryResult) {
	v := result.Verdict

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "%s\n", rule)
	fmt.Fprintf(w, "  Claim Decision: %s\n", decisionLabel(v.Approved))
	fmt.Fprintf(w, "%s\n", rule)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Query:        %s\n", result.Query)
	fmt.Fprintf(w, "  Amount:       %s\n", formatAmount(v.Amount))
	fmt.Fprintf(w, "  Confidence:   %s\n", strings.ToUpper(string(v.Confidence)))
	fmt.Fprintf(w, "  Clauses:      %d retrieved\n", len(result.RetrievedClauses))
	fmt.Fprintf(w, "  Time:         %.2fs\n", result.ProcessingTimeSeconds)
	if len(result.Validation.MissingFields) > 0 {
		fmt.Fprintf(w, "  Missing:      %s\n", strings.Join(result.Validation.MissingFields, ", "))
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Reasoning:\n    %s\n", v.Reasoning)
	if len(v.RiskFactors) > 0 {
		fmt.Fprintf(w, "\n  Risk factors:\n")
		for _, rf := range v.RiskFactors {
			fmt.Fprintf(w, "    - %s\n", rf)
		}
	}
	fmt.Fprintf(w, "\n")
}

func writeJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func decisionLabel(approved bool) string {
	if approved {
		return "APPROVED"
	}
	return "REJECTED"
}

// formatAmount renders rupee amounts with Indian digit grouping
func formatAmount(amount *int) string {
	if amount == nil {
		return "-"
	}
	s := fmt.Sprintf("%d", *amount)
	if len(s) <= 3 {
		return "₹" + s
	}
	head, tail := s[:len(s)-3], s[len(s)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return "₹" + strings.Join(groups, ",") + "," + tail
}

func sectionName(s string) string {
	if s == "" {
		return "Unknown Section"
	}
	return s
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func stringOrDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

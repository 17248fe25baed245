package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// QuizQuestion is one renderable quiz item.
type QuizQuestion struct {
	Question    string
	Options     []string
	Answer      int
	Explanation string
}

// QuizDocument bundles quiz content for rendering.
type QuizDocument struct {
	Title     string
	Subject   string
	Questions []QuizQuestion
}

// PDFExporter renders quiz candidates into a printable PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document for the quiz.
func (e *PDFExporter) Render(doc QuizDocument) ([]byte, error) {
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("pdf requires at least one question")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	title := doc.Title
	if title == "" {
		title = "Quiz"
	}
	pdf.SetFont("Arial", "B", 14)
	pdf.MultiCell(0, 8, strings.ToUpper(title), "", "C", false)
	if doc.Subject != "" {
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(0, 6, doc.Subject, "", "C", false)
	}
	pdf.Ln(4)

	optionLabels := []string{"A", "B", "C", "D", "E", "F"}
	for i, q := range doc.Questions {
		pdf.SetFont("Arial", "B", 11)
		pdf.MultiCell(0, 6, fmt.Sprintf("%d. %s", i+1, q.Question), "", "L", false)
		pdf.SetFont("Arial", "", 10)
		for j, opt := range q.Options {
			label := fmt.Sprintf("%d", j+1)
			if j < len(optionLabels) {
				label = optionLabels[j]
			}
			pdf.MultiCell(0, 5, fmt.Sprintf("   %s) %s", label, opt), "", "L", false)
		}
		pdf.Ln(3)
	}

	// Answer key on its own page.
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 12)
	pdf.MultiCell(0, 8, "ANSWER KEY", "", "C", false)
	pdf.Ln(2)
	pdf.SetFont("Arial", "", 10)
	for i, q := range doc.Questions {
		answer := "?"
		if q.Answer >= 0 && q.Answer < len(optionLabels) && q.Answer < len(q.Options) {
			answer = optionLabels[q.Answer]
		}
		line := fmt.Sprintf("%d. %s", i+1, answer)
		if q.Explanation != "" {
			line += " - " + q.Explanation
		}
		pdf.MultiCell(0, 5, line, "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

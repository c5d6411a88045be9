// Package pdf renders acknowledgement documents.
package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/go-pdf/fpdf"
)

// Data is the flat set of values a template may reference.
type Data map[string]string

// Renderer turns a named template and its data into a PDF.
type Renderer interface {
	Render(templateName string, data Data) ([]byte, error)
}

type field struct {
	label string
	key   string
}

type layout struct {
	title  string
	fields []field
	body   *template.Template
}

var riderFields = []field{
	{"Rider name", "riderName"},
	{"Rider code", "riderCode"},
	{"Phone", "phone"},
	{"Nationality", "nationality"},
}

func mustBody(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=zero").Parse(text))
}

var layouts = map[string]layout{
	"VISA": {
		title: "Visa Acknowledgement",
		fields: append(riderFields[:len(riderFields):len(riderFields)],
			field{"Passport number", "passportNumber"},
			field{"Visa number", "visaNumber"},
			field{"Visa expiry", "visaExpiry"},
		),
		body: mustBody("VISA", `I, {{.riderName}}, acknowledge that my residence visa is sponsored by {{.company}} and that my passport and visa documents are processed by the company for the duration of my employment.

I will inform the HR department of any change to my passport or visa status and will return company-issued documents when my employment ends.`),
	},
	"SIM": {
		title: "SIM Card Acknowledgement",
		fields: append(riderFields[:len(riderFields):len(riderFields)],
			field{"SIM number", "companySim"},
		),
		body: mustBody("SIM", `I, {{.riderName}}, acknowledge receipt of company SIM card {{.companySim}} issued by {{.company}}.

The SIM card remains company property. It is to be used for work purposes only and must be returned when my employment ends. Charges caused by personal use may be deducted from my salary.`),
	},
	"EQUIPMENT": {
		title:  "Equipment Acknowledgement",
		fields: riderFields,
		body:   mustBody("EQUIPMENT", `I, {{.riderName}}, acknowledge receipt of the equipment issued to me by {{.company}}{{if .details}}: {{.details}}{{end}}.

I will keep the equipment in good condition and return it on request or when my employment ends.`),
	},
	"TRAINING": {
		title:  "Training Acknowledgement",
		fields: riderFields,
		body:   mustBody("TRAINING", `I, {{.riderName}}, confirm that I completed the training provided by {{.company}}{{if .details}}: {{.details}}{{end}}.

I understand the safety rules and operating procedures covered and agree to follow them.`),
	},
	"OTHER": {
		title:  "Acknowledgement",
		fields: riderFields,
		body:   mustBody("OTHER", `I, {{.riderName}}, acknowledge the following: {{if .details}}{{.details}}{{else}}the terms communicated to me by {{.company}}{{end}}.`),
	},
}

// Templates lists the available template names.
func Templates() []string {
	return []string{"VISA", "SIM", "EQUIPMENT", "TRAINING", "OTHER"}
}

// FPDFRenderer draws A4 acknowledgement forms.
type FPDFRenderer struct {
	company string
}

func NewRenderer(company string) *FPDFRenderer {
	if company == "" {
		company = "the company"
	}
	return &FPDFRenderer{company: company}
}

func (r *FPDFRenderer) Render(templateName string, data Data) ([]byte, error) {
	l, ok := layouts[strings.ToUpper(templateName)]
	if !ok {
		return nil, fmt.Errorf("unknown pdf template %q", templateName)
	}

	values := map[string]string{"company": r.company}
	for k, v := range data {
		values[k] = v
	}

	var body bytes.Buffer
	if err := l.body.Execute(&body, values); err != nil {
		return nil, fmt.Errorf("failed to execute template %s: %w", templateName, err)
	}

	title := l.title
	if t := values["title"]; t != "" {
		title = t
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(title, true)
	doc.SetCreator(r.company, true)
	doc.SetMargins(20, 20, 20)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(0, 12, tr(title), "", 1, "C", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(0, 6, tr(values["date"]), "", 1, "R", false, 0, "")
	doc.Ln(4)

	for _, f := range l.fields {
		v := values[f.key]
		if v == "" {
			v = "-"
		}
		doc.SetFont("Helvetica", "B", 11)
		doc.CellFormat(50, 8, tr(f.label), "1", 0, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 11)
		doc.CellFormat(0, 8, tr(v), "1", 1, "L", false, 0, "")
	}
	doc.Ln(8)

	doc.SetFont("Helvetica", "", 11)
	for _, para := range strings.Split(body.String(), "\n\n") {
		doc.MultiCell(0, 6, tr(strings.TrimSpace(para)), "", "J", false)
		doc.Ln(3)
	}

	doc.Ln(20)
	doc.CellFormat(80, 6, "______________________________", "", 0, "L", false, 0, "")
	doc.CellFormat(0, 6, "______________________________", "", 1, "R", false, 0, "")
	doc.CellFormat(80, 6, tr("Rider signature"), "", 0, "L", false, 0, "")
	doc.CellFormat(0, 6, tr("Issued by "+values["generatedBy"]), "", 1, "R", false, 0, "")

	var out bytes.Buffer
	if err := doc.Output(&out); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return out.Bytes(), nil
}

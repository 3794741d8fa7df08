package vhdl

import (
	"bytes"
	"embed"
	"sync"
	"text/template"

	"gupl/internal/ir"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	ramTemplatesOnce sync.Once
	ramTemplates     *template.Template
	ramTemplatesErr  error
)

func loadRAMTemplates() (*template.Template, error) {
	ramTemplatesOnce.Do(func() {
		ramTemplates, ramTemplatesErr = template.ParseFS(templateFS, "templates/*.tmpl")
	})
	return ramTemplates, ramTemplatesErr
}

// renderRAMComponent returns the simple_dualportram component declaration.
func renderRAMComponent() (string, error) {
	return executeRAMTemplate("ram_component.vhd.tmpl", nil)
}

// renderRAMInstances returns one buf_<field>_i instance per buffer.
func renderRAMInstances(buffers []*ir.StorageBuffer) (string, error) {
	return executeRAMTemplate("ram_instance.vhd.tmpl", buffers)
}

func executeRAMTemplate(name string, data any) (string, error) {
	tmpl, err := loadRAMTemplates()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

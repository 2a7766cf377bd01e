package linkemit

import (
	"encoding/json"
	"io"
	"strings"
	"text/template"
)

// WriteRecord writes d as indented JSON.
func WriteRecord(w io.Writer, d Directive) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

var cgoTmpl = template.Must(template.New("cgo").Parse(`// Code generated by scmpbuild. DO NOT EDIT.

package {{.Package}}

/*
{{- if .CFlags}}
#cgo CFLAGS: {{.CFlags}}
{{- end}}
#cgo LDFLAGS: {{.LDFlags}}
*/
import "C"
`))

// WriteCgo writes a Go file for package pkg whose cgo preamble carries
// the directive.
func WriteCgo(w io.Writer, pkg string, d Directive) error {
	return cgoTmpl.Execute(w, struct {
		Package string
		CFlags  string
		LDFlags string
	}{
		Package: pkg,
		CFlags:  strings.Join(d.CFlags(), " "),
		LDFlags: strings.Join(d.LDFlags(), " "),
	})
}

package report

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"
)

// XMLWriter writes the generic coverage format:
//
//	<coverage version="1">
//		<file path="src/main.p">
//			<lineToCover lineNumber="3" covered="true"/>
//		</file>
//	</coverage>
type XMLWriter struct{}

// Write implements Writer.
func (XMLWriter) Write(w io.Writer, r *Report) error {
	var sb strings.Builder

	sb.WriteString(`<coverage version="`)
	sb.WriteString(strconv.Itoa(r.Version))
	sb.WriteString("\">\n")

	for _, f := range r.Files {
		sb.WriteString("\t<file path=\"")
		if err := xml.EscapeText(&sb, []byte(f.Path)); err != nil {
			return err
		}
		sb.WriteString("\">\n")

		for _, l := range f.Lines {
			sb.WriteString("\t\t<lineToCover lineNumber=\"")
			sb.WriteString(strconv.Itoa(l.Number))
			sb.WriteString("\" covered=\"")
			sb.WriteString(strconv.FormatBool(l.Covered))
			sb.WriteString("\"/>\n")
		}

		sb.WriteString("\t</file>\n")
	}

	sb.WriteString("</coverage>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

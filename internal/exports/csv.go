// Package exports builds the read-only projections served to back-office
// tooling: CSV files for spreadsheets and mailing-list address maps.
package exports

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// utf8BOM makes spreadsheet tools pick up the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes semicolon-delimited rows with every field quoted and a
// UTF-8 BOM up front. encoding/csv cannot force quoting on all fields, so
// the quoting is done here.
type CSVWriter struct {
	w       io.Writer
	started bool
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: w}
}

// WriteRow quotes and writes one row. The BOM goes out before the first
// row.
func (c *CSVWriter) WriteRow(fields ...string) error {
	if !c.started {
		if _, err := c.w.Write(utf8BOM); err != nil {
			return err
		}
		c.started = true
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	_, err := io.WriteString(c.w, strings.Join(quoted, ";")+"\r\n")
	return err
}

// Filename encodes the export scope and date, e.g. "slots_20250315.csv".
func Filename(scope string, date time.Time) string {
	return fmt.Sprintf("%s_%s.csv", scope, date.Format("20060102"))
}

package analytics

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var (
	// ErrNoExportData is returned when the selected report has no rows.
	ErrNoExportData      = errors.New("no data available for export")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrUnsupportedExport = errors.New("unsupported export type")
)

// Field is one named column of an export record.
type Field struct {
	Key   string
	Value interface{}
}

// Record keeps its fields in column order, so CSV headers and JSON keys come
// out the way the report defines them.
type Record []Field

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r Record) get(key string) (interface{}, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Download is a rendered export ready to be sent as an attachment.
type Download struct {
	Filename    string
	ContentType string
	Body        []byte
}

type exportEnvelope struct {
	ExportDate   string   `json:"export_date"`
	Filename     string   `json:"filename"`
	TotalRecords int      `json:"total_records"`
	Data         []Record `json:"data"`
}

// ExportFilename builds "{type}_{period}_{YYYY-MM-DD}.{format}".
func ExportFilename(exportType, period, format string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s.%s", exportType, period, now.Format("2006-01-02"), format)
}

// Export renders records as CSV or JSON. The CSV header is taken from the
// first record and every row follows that column order.
func Export(records []Record, format, filename string, now time.Time) (*Download, error) {
	if len(records) == 0 {
		return nil, ErrNoExportData
	}

	switch format {
	case FormatCSV:
		body, err := encodeCSV(records)
		if err != nil {
			return nil, err
		}
		return &Download{Filename: filename, ContentType: "text/csv", Body: body}, nil
	case FormatJSON:
		body, err := json.MarshalIndent(exportEnvelope{
			ExportDate:   now.Format(time.RFC3339),
			Filename:     filename,
			TotalRecords: len(records),
			Data:         records,
		}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON export: %w", err)
		}
		return &Download{Filename: filename, ContentType: "application/json", Body: body}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func encodeCSV(records []Record) ([]byte, error) {
	header := make([]string, len(records[0]))
	for i, f := range records[0] {
		header[i] = f.Key
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	row := make([]string, len(header))
	for _, rec := range records {
		for i, key := range header {
			v, _ := rec.get(key)
			row[i] = formatCell(v)
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV export: %w", err)
	}
	return buf.Bytes(), nil
}

func formatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

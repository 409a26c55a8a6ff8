package export

// Dataset defines tabular export content.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
}

// Record is a list item that can render itself as one export row keyed by header.
type Record interface {
	ExportRow() map[string]string
}

// FromRecords builds a dataset from one page of list items.
func FromRecords[T Record](title string, headers []string, items []T) Dataset {
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, item.ExportRow())
	}
	return Dataset{Title: title, Headers: headers, Rows: rows}
}

// Renderer turns a dataset into file bytes.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
	Extension() string
}

// ForFormat returns the renderer for "csv" or "pdf".
func ForFormat(format string) (Renderer, bool) {
	switch format {
	case "csv":
		return NewCSVExporter(), true
	case "pdf":
		return NewPDFExporter(), true
	default:
		return nil, false
	}
}

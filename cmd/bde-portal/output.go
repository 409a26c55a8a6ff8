package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printPage renders the current page of list as an aligned table with a page footer.
func printPage(w io.Writer, list remoteList) error {
	data := list.Dataset()
	fmt.Fprintf(w, "%s\n", data.Title)

	page, pages, total := list.Position()
	if len(data.Rows) == 0 {
		fmt.Fprintln(w, "  (nothing here yet)")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.ToUpper(strings.Join(data.Headers, "\t")))
		for _, row := range data.Rows {
			cells := make([]string, len(data.Headers))
			for i, h := range data.Headers {
				cells[i] = row[h]
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if pages == 0 {
		pages = 1
	}
	fmt.Fprintf(w, "page %d of %d, %d total\n", page, pages, total)
	return nil
}

func printRow(w io.Writer, headers []string, row map[string]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, h := range headers {
		fmt.Fprintf(tw, "%s:\t%s\n", h, row[h])
	}
	return tw.Flush()
}

package jma

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/juseg/aftershocks/internal/domain"
)

// Column headers of the earthquake table.
const (
	headerRegion    = "region name"
	headerMagnitude = "magnitude"
	headerLatitude  = "latitude"
	headerLongitude = "longitude"
	headerDepth     = "depth"
)

// timeLayouts are tried in order against the first column once the zone
// suffix has been removed.
var timeLayouts = []string{
	"15:04 2 Jan 2006",
	"2006/01/02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

// defaultColumns is the layout of the JMA hypocenter table, used when the
// fallback table has no recognizable header row.
var defaultColumns = columns{latitude: 1, longitude: 2, depth: 3, magnitude: 4, region: 5}

var errNoTable = errors.New("earthquake table not found")

// table is the text content of an HTML table, one slice per row.
type table [][]string

// columns maps the headers we care about to their position in a row.
type columns struct {
	region    int
	magnitude int
	latitude  int
	longitude int
	depth     int
}

// parseListing extracts the earthquake table from an HTML document. The table
// is located by its header row; when no table carries the expected headers the
// table at fallbackIndex is read with the default column layout.
func parseListing(doc []byte, fallbackIndex int, loc *time.Location) ([]domain.EarthquakeRecord, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, &domain.AcquisitionError{Op: "parse html", Err: err}
	}

	tables := collectTables(root)
	t, cols, err := selectTable(tables, fallbackIndex)
	if err != nil {
		return nil, &domain.AcquisitionError{Op: "locate table", Err: err}
	}

	records := make([]domain.EarthquakeRecord, 0, len(t)-1)
	for i, row := range t[1:] {
		if isBlank(row) {
			continue
		}
		rec, err := parseRow(row, cols, loc)
		if err != nil {
			return nil, &domain.AcquisitionError{Op: fmt.Sprintf("parse row %d", i+1), Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}

func selectTable(tables []table, fallbackIndex int) (table, columns, error) {
	for _, t := range tables {
		if len(t) == 0 {
			continue
		}
		if cols, ok := findColumns(t[0]); ok {
			return t, cols, nil
		}
	}

	if fallbackIndex < 0 || fallbackIndex >= len(tables) {
		return nil, columns{}, fmt.Errorf("%w: %d tables in document, fallback index %d", errNoTable, len(tables), fallbackIndex)
	}
	t := tables[fallbackIndex]
	if len(t) == 0 {
		return nil, columns{}, fmt.Errorf("%w: table %d is empty", errNoTable, fallbackIndex)
	}
	return t, defaultColumns, nil
}

// findColumns reports the column positions in a header row. Region and
// magnitude are required; the coordinate columns are optional (-1 when absent).
// Column 0 always holds the timestamp.
func findColumns(header []string) (columns, bool) {
	cols := columns{region: -1, magnitude: -1, latitude: -1, longitude: -1, depth: -1}
	for i, h := range header {
		if i == 0 {
			continue
		}
		switch h = strings.ToLower(h); {
		case strings.Contains(h, headerRegion):
			cols.region = i
		case strings.Contains(h, headerMagnitude):
			cols.magnitude = i
		case strings.Contains(h, headerLatitude):
			cols.latitude = i
		case strings.Contains(h, headerLongitude):
			cols.longitude = i
		case strings.Contains(h, headerDepth):
			cols.depth = i
		}
	}
	return cols, cols.region > 0 && cols.magnitude > 0
}

func parseRow(row []string, cols columns, loc *time.Location) (domain.EarthquakeRecord, error) {
	if need := max(cols.region, cols.magnitude) + 1; len(row) < need {
		return domain.EarthquakeRecord{}, fmt.Errorf("row has %d cells, want at least %d", len(row), need)
	}
	ts, err := parseTimestamp(cell(row, 0), loc)
	if err != nil {
		return domain.EarthquakeRecord{}, err
	}
	return domain.EarthquakeRecord{
		Time:      ts,
		Region:    cell(row, cols.region),
		Magnitude: cell(row, cols.magnitude),
		Latitude:  cell(row, cols.latitude),
		Longitude: cell(row, cols.longitude),
		Depth:     cell(row, cols.depth),
	}, nil
}

// parseTimestamp reads a listing timestamp. Values without an explicit offset
// are wall-clock times in loc.
func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	s := strings.Join(strings.Fields(strings.ReplaceAll(raw, "JST", "")), " ")
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}

// collectTables returns every table in document order. Rows of nested tables
// belong to the nested table only.
func collectTables(root *html.Node) []table {
	var tables []table
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			idx := len(tables)
			tables = append(tables, nil)
			tables[idx] = collectRows(n, walk)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return tables
}

// collectRows gathers the rows of tbl, handing nested tables back to walk.
func collectRows(tbl *html.Node, walk func(*html.Node)) table {
	var rows table
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				walk(c)
			case atom.Tr:
				rows = append(rows, rowCells(c, walk))
			default:
				visit(c)
			}
		}
	}
	visit(tbl)
	return rows
}

func rowCells(tr *html.Node, walk func(*html.Node)) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, textContent(c, walk))
		}
	}
	return cells
}

// textContent joins the text below n with runs of whitespace collapsed.
func textContent(n *html.Node, walk func(*html.Node)) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				sb.WriteString(c.Data)
				sb.WriteByte(' ')
			case c.Type == html.ElementNode && c.DataAtom == atom.Table:
				walk(c)
			case c.Type == html.ElementNode && c.DataAtom == atom.Br:
				sb.WriteByte(' ')
			default:
				visit(c)
			}
		}
	}
	visit(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

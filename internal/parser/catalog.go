package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrNoColumns = errors.New("publication index needs a Title or Link column")

// Publication is one row of the publication index.
type Publication struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

// Catalog maps corpus files to publications. Data row N (0-based, header
// excluded) describes the files named N.txt, N.pdf and so on.
type Catalog struct {
	entries []Publication
}

// url column names, by precedence
var urlColumns = []string{"Link", "URL", "link", "url"}

// LoadCatalog reads a .csv or .xlsx publication index.
func LoadCatalog(path string) (*Catalog, error) {
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported publication index format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read publication index %s: %w", path, err)
	}
	return newCatalog(rows)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	return f.GetRows(sheets[0])
}

func newCatalog(rows [][]string) (*Catalog, error) {
	if len(rows) == 0 {
		return &Catalog{}, nil
	}

	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, ok := header[h]; !ok {
			header[h] = i
		}
	}

	titleCol := column(header, "Title", "title", "TITLE")
	urlCol := column(header, urlColumns...)
	if titleCol < 0 && urlCol < 0 {
		return nil, ErrNoColumns
	}

	entries := make([]Publication, 0, len(rows)-1)
	for _, row := range rows[1:] {
		entries = append(entries, Publication{
			Title: cell(row, titleCol),
			URL:   cell(row, urlCol),
		})
	}
	return &Catalog{entries: entries}, nil
}

func column(header map[string]int, names ...string) int {
	for _, n := range names {
		if i, ok := header[n]; ok {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

func (c *Catalog) At(i int) (Publication, bool) {
	if c == nil || i < 0 || i >= len(c.entries) {
		return Publication{}, false
	}
	return c.entries[i], true
}

// Lookup resolves a corpus file name such as "12.txt" to its publication.
func (c *Catalog) Lookup(filename string) (Publication, bool) {
	n, ok := Ordinal(filename)
	if !ok {
		return Publication{}, false
	}
	return c.At(n)
}

// Ordinal parses the row number encoded in a corpus file name.
func Ordinal(filename string) (int, bool) {
	base := filepath.Base(filename)
	n, err := strconv.Atoi(strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

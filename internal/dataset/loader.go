package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"contact-insights-go/internal/types"
)

var extensions = []string{".json", ".xlsx"}

// Source reads datasets from a directory. Encoding applies to JSON files only.
type Source struct {
	Dir      string
	Encoding string
}

func (s Source) LoadPersons(name string) ([]types.Person, error) {
	return load[types.Person](s, name)
}

func (s Source) LoadContacts(name string) ([]types.Contact, error) {
	return load[types.Contact](s, name)
}

// Resolve finds the file backing a dataset name. A name with an extension is
// used as is, otherwise .json and .xlsx are tried in that order.
func (s Source) Resolve(name string) (string, error) {
	base := filepath.Join(s.Dir, name)
	if ext := strings.ToLower(filepath.Ext(name)); ext == ".json" || ext == ".xlsx" {
		return base, nil
	}
	for _, ext := range extensions {
		p := base + ext
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("dataset %q: no %s file in %s: %w", name, strings.Join(extensions, " or "), s.Dir, os.ErrNotExist)
}

func load[T any](s Source, name string) ([]T, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	var rows []json.RawMessage
	if strings.ToLower(filepath.Ext(path)) == ".xlsx" {
		rows, err = readSheet(path)
	} else {
		rows, err = s.readJSON(path)
	}
	if err != nil {
		return nil, err
	}

	out := make([]T, len(rows))
	for i, raw := range rows {
		if err := json.Unmarshal(raw, &out[i]); err != nil {
			var mie *types.MalformedInputError
			if !errors.As(err, &mie) {
				err = &types.MalformedInputError{Err: err}
			}
			return nil, fmt.Errorf("%s: %w", path, types.WithIndex(err, i))
		}
	}
	return out, nil
}

func (s Source) readJSON(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.EqualFold(s.Encoding, "windows-1251") {
		r = charmap.Windows1251.NewDecoder().Reader(f)
	}

	var rows []json.RawMessage
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%s: %w", path, &types.MalformedInputError{Index: -1, Err: err})
	}
	return rows, nil
}

// readSheet turns the first sheet into one JSON object per data row, keyed by
// the header row. Fully blank rows are skipped.
func readSheet(path string) ([]json.RawMessage, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	var out []json.RawMessage
	for _, r := range rows[1:] {
		raw, blank, err := rowObject(header, r)
		if err != nil {
			return nil, err
		}
		if blank {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

// rowObject encodes one sheet row as a JSON object whose keys follow the
// header's column order.
func rowObject(header, row []string) (json.RawMessage, bool, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	blank := true
	n := 0
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" || i >= len(row) {
			continue
		}
		if strings.TrimSpace(row[i]) != "" {
			blank = false
		}
		k, err := json.Marshal(h)
		if err != nil {
			return nil, false, err
		}
		v, err := json.Marshal(row[i])
		if err != nil {
			return nil, false, err
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		n++
	}
	buf.WriteByte('}')
	return buf.Bytes(), blank, nil
}

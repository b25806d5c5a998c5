// Copyright 2026 The PetalFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package filesystem

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

// Record is one row of a table, keyed by column name.
type Record map[string]string

// ReadTable reads a CSV file from the handle into records. The first row
// is treated as the header.
func ReadTable(ctx context.Context, h Handle, name string) ([]Record, error) {
	f, err := h.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteTable writes records to the handle as CSV. Columns are the union of
// record keys, sorted, so output is deterministic.
func WriteTable(ctx context.Context, h Handle, name string, records []Record) error {
	columns := map[string]struct{}{}
	for _, rec := range records {
		for col := range rec {
			columns[col] = struct{}{}
		}
	}
	header := make([]string, 0, len(columns))
	for col := range columns {
		header = append(header, col)
	}
	sort.Strings(header)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := make([]string, len(header))
		for i, col := range header {
			row[i] = rec[col]
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return h.WriteFile(ctx, name, buf.Bytes())
}

// ReadDocument reads a semi-structured document (JSON or YAML, chosen by
// file extension) into a map.
func ReadDocument(ctx context.Context, h Handle, name string) (map[string]any, error) {
	data, err := h.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}

	doc := map[string]any{}
	switch path.Ext(name) {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing document %s: %w", name, err)
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing document %s: %w", name, err)
		}
	}
	return doc, nil
}

// WriteDocument writes a map to the handle as JSON or YAML, chosen by file
// extension.
func WriteDocument(ctx context.Context, h Handle, name string, doc map[string]any) error {
	var data []byte
	var err error
	switch path.Ext(name) {
	case ".json":
		data, err = json.MarshalIndent(doc, "", "  ")
	default:
		data, err = yaml.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", name, err)
	}
	return h.WriteFile(ctx, name, data)
}

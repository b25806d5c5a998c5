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

// Package output renders command results as human-readable text or as a
// stable JSON envelope, selected by the --json flag.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/petalflow/petalflow/pkg/errors"
)

// Formatter renders command results.
type Formatter interface {
	// Success renders a successful result. data must be JSON-marshalable
	// for the JSON formatter; the text formatter uses the Renderer
	// interface when data implements it.
	Success(command string, data any) error

	// Failure renders an error.
	Failure(command string, err error) error
}

// Renderer lets result types control their own text rendering.
type Renderer interface {
	RenderText(w io.Writer) error
}

// New returns a formatter writing to w. jsonMode selects the JSON
// envelope; a nil writer means stdout.
func New(w io.Writer, jsonMode bool) Formatter {
	if w == nil {
		w = os.Stdout
	}
	if jsonMode {
		return &jsonFormatter{out: w}
	}
	return &textFormatter{out: w}
}

// envelope is the stable JSON output shape.
type envelope struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the structured error body of a JSON envelope.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type jsonFormatter struct {
	out io.Writer
}

func (f *jsonFormatter) emit(e envelope) error {
	e.Version = "1.0"
	encoder := json.NewEncoder(f.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(e)
}

func (f *jsonFormatter) Success(command string, data any) error {
	return f.emit(envelope{Command: command, Success: true, Data: data})
}

func (f *jsonFormatter) Failure(command string, err error) error {
	return f.emit(envelope{
		Command: command,
		Success: false,
		Error:   &Error{Type: errors.Layer(err), Message: err.Error()},
	})
}

type textFormatter struct {
	out io.Writer
}

func (f *textFormatter) Success(_ string, data any) error {
	switch v := data.(type) {
	case nil:
		return nil
	case Renderer:
		return v.RenderText(f.out)
	case string:
		_, err := fmt.Fprintln(f.out, v)
		return err
	default:
		// Fall back to indented JSON rather than %v soup.
		encoder := json.NewEncoder(f.out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	}
}

func (f *textFormatter) Failure(_ string, err error) error {
	_, werr := fmt.Fprintf(f.out, "error: %v\n", err)
	return werr
}

// Table is a Renderer for columnar listings.
type Table struct {
	Header []string
	Rows   [][]string
}

// RenderText writes the table with aligned columns.
func (t Table) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(t.Header) > 0 {
		for i, col := range t.Header {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, col)
		}
		fmt.Fprintln(tw)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// KeyValues is a Renderer for show-style detail output.
type KeyValues struct {
	Pairs [][2]string
}

// RenderText writes one "key: value" line per pair.
func (kv KeyValues) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, pair := range kv.Pairs {
		fmt.Fprintf(tw, "%s:\t%s\n", pair[0], pair[1])
	}
	return tw.Flush()
}

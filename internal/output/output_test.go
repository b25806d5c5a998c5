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

package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petalflow/petalflow/pkg/errors"
)

func TestJSONSuccessEnvelope(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf, true)

	require.NoError(t, f.Success("job list", map[string]any{"count": 2}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "1.0", got["@version"])
	assert.Equal(t, "job list", got["command"])
	assert.Equal(t, true, got["success"])
	assert.Equal(t, float64(2), got["data"].(map[string]any)["count"])
}

func TestJSONFailureEnvelope(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf, true)

	err := &errors.ConfigError{Key: "run.executor.type", Reason: "unknown"}
	require.NoError(t, f.Failure("run", err))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, false, got["success"])
	body := got["error"].(map[string]any)
	assert.Equal(t, "config", body["type"])
	assert.Contains(t, body["message"], "run.executor.type")
}

func TestTextTable(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf, false)

	require.NoError(t, f.Success("job list", Table{
		Header: []string{"ID", "STATE"},
		Rows:   [][]string{{"abc", "pending"}, {"def", "completed"}},
	}))

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "completed")
}

func TestTextKeyValues(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf, false)

	require.NoError(t, f.Success("job show", KeyValues{
		Pairs: [][2]string{{"id", "abc"}, {"state", "running"}},
	}))
	assert.Contains(t, buf.String(), "id:")
	assert.Contains(t, buf.String(), "running")
}

func TestTextFailure(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf, false)

	require.NoError(t, f.Failure("run", errors.New("boom")))
	assert.Equal(t, "error: boom\n", buf.String())
}

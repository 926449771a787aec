package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/restcore/internal/entity"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		wantErr  bool
	}{
		{input: "", expected: FormatTable},
		{input: "table", expected: FormatTable},
		{input: "JSON", expected: FormatJSON},
		{input: "yml", expected: FormatYAML},
		{input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

type record struct {
	Name    string                 `json:"name"`
	Age     int                    `json:"age,omitempty"`
	Country map[string]interface{} `json:"country,omitempty"`
}

func newTestFormatter(format Format) (*Formatter, *bytes.Buffer) {
	out := new(bytes.Buffer)
	f := NewFormatter(format, false, false)
	f.Writer = out
	f.ErrWriter = new(bytes.Buffer)
	return f, out
}

func TestFormatter_PrintRecords(t *testing.T) {
	records := []record{
		{Name: "Ann", Age: 34, Country: map[string]interface{}{"code": "DE"}},
		{Name: "Bob"},
	}
	meta := entity.Metadata{TotalCount: 7, PageOffset: 2, PageSize: 2}

	t.Run("table", func(t *testing.T) {
		f, out := newTestFormatter(FormatTable)
		require.NoError(t, f.PrintRecords(records, meta))

		text := out.String()
		assert.Contains(t, text, "age")
		assert.Contains(t, text, `{"code":"DE"}`)
		assert.Contains(t, text, "Bob")
		assert.Contains(t, text, "total: 7  offset: 2  size: 2")
	})

	t.Run("yaml uses json names", func(t *testing.T) {
		f, out := newTestFormatter(FormatYAML)
		require.NoError(t, f.PrintRecords(records, meta))

		text := out.String()
		assert.Contains(t, text, "totalCount: 7")
		assert.Contains(t, text, "name: Ann")
		assert.Contains(t, text, "code: DE")
	})

	t.Run("json", func(t *testing.T) {
		f, out := newTestFormatter(FormatJSON)
		require.NoError(t, f.PrintRecords(records, meta))
		assert.Contains(t, out.String(), `"pageOffset": 2`)
	})

	t.Run("quiet prints nothing", func(t *testing.T) {
		f, out := newTestFormatter(FormatTable)
		f.Quiet = true
		require.NoError(t, f.PrintRecords(records, meta))
		assert.Empty(t, out.String())
	})

	t.Run("scalars are rejected in table mode", func(t *testing.T) {
		f, _ := newTestFormatter(FormatTable)
		assert.Error(t, f.PrintRecords([]int{1, 2}, meta))
	})
}

func TestFormatter_PrintTable(t *testing.T) {
	data := TableData{Headers: []string{"FIELD", "VALUE"}, Rows: [][]string{{"age", "30"}}}

	f, out := newTestFormatter(FormatJSON)
	f.PrintTable(data)
	assert.JSONEq(t, `[{"FIELD":"age","VALUE":"30"}]`, out.String())

	f, out = newTestFormatter(FormatTable)
	f.NoHeaders = true
	f.PrintTable(data)
	assert.NotContains(t, out.String(), "FIELD")
	assert.Contains(t, out.String(), "age")
}

func TestFormatter_Messages(t *testing.T) {
	f, out := newTestFormatter(FormatTable)
	errOut := new(bytes.Buffer)
	f.ErrWriter = errOut

	f.PrintKeyValue("version", "dev")
	f.PrintSuccess("done")
	f.PrintWarning("careful")
	f.PrintError("broken")

	assert.Equal(t, "version: dev\ndone\n", out.String())
	assert.Equal(t, "Warning: careful\nError: broken\n", errOut.String())
}

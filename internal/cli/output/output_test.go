package output

import (
	"bytes"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"auto", ModeAuto, false},
		{"text", ModeText, false},
		{"json", ModeJSON, false},
		{"yaml", ModeYAML, false},
		{"markdown", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEffectiveMode_AutoOnBufferIsJSON(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.Equal(t, ModeJSON, r.EffectiveMode())
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

func TestStructured(t *testing.T) {
	v := map[string]any{"name": "orders", "count": 2}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		ok, err := NewRenderer(&buf, &buf, ModeJSON).Structured(v)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"name": "orders", "count": 2}`, buf.String())
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		ok, err := NewRenderer(&buf, &buf, ModeYAML).Structured(v)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.YAMLEq(t, "name: orders\ncount: 2\n", buf.String())
	})

	t.Run("text writes nothing", func(t *testing.T) {
		var buf bytes.Buffer
		ok, err := NewRenderer(&buf, &buf, ModeText).Structured(v)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, buf.String())
	})
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, &buf, ModeText)
	r.Table(table.Row{"ID", "Access"}, []table.Row{{"model.revenue.orders", "public"}})

	out := buf.String()
	assert.Contains(t, out, "model.revenue.orders")
	assert.Contains(t, out, "public")
}

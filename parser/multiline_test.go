package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ngsiadapter/errors"
)

func TestMultiLine_ParseRequest(t *testing.T) {
	p := NewMultiLine("check_test")

	tests := []struct {
		name     string
		body     string
		data     string
		perfData string
	}{
		{
			name: "single line without perfdata",
			body: "DISK OK - free space: / 3326 MB (56% inode=92%);",
			data: "DISK OK - free space: / 3326 MB (56% inode=92%);",
		},
		{
			name:     "single line with perfdata",
			body:     "OK - load average: 0.01, 0.02, 0.05|load1=0.01;1;1;0;",
			data:     "OK - load average: 0.01, 0.02, 0.05",
			perfData: "load1=0.01;1;1;0;",
		},
		{
			name:     "trailing newline",
			body:     "OK - load average: 0.01, 0.02, 0.05|load1=0.01;1;1;0;\n",
			data:     "OK - load average: 0.01, 0.02, 0.05",
			perfData: "load1=0.01;1;1;0;",
		},
		{
			name: "multiline text only",
			body: "TEXT1\nTEXT2\nTEXT3",
			data: "TEXT1\nTEXT2\nTEXT3",
		},
		{
			name:     "multiline text with first perfdata",
			body:     "TEXT1|PERF1\nTEXT2\nTEXT3",
			data:     "TEXT1\nTEXT2\nTEXT3",
			perfData: "PERF1",
		},
		{
			name:     "multiline text and multiline perfdata",
			body:     "TEXT1|PERF1\nTEXT2\nTEXT3|PERF2\nPERF3\nPERF4",
			data:     "TEXT1\nTEXT2\nTEXT3",
			perfData: "PERF1\nPERF2\nPERF3\nPERF4",
		},
		{
			name:     "empty perf continuation is plain text",
			body:     "TEXT1|PERF1\nTEXT2|",
			data:     "TEXT1\nTEXT2",
			perfData: "PERF1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := p.ParseRequest(Request{Body: []byte(tt.body)})
			require.NoError(t, err)
			assert.Equal(t, tt.data, data.Data)
			assert.Equal(t, tt.perfData, data.PerfData)
		})
	}
}

func TestMultiLine_ParseRequest_FormatErrors(t *testing.T) {
	p := NewMultiLine("check_test")

	tests := []struct {
		name     string
		body     string
		sentinel error
	}{
		{"empty body", "", errors.ErrInvalidDataFormat},
		{"empty first text", "|PERF", errors.ErrInvalidDataFormat},
		{"two separators", "TEXT|PERF|MORE", errors.ErrInvalidDataFormat},
		{"empty middle line", "TEXT1\n\nTEXT3", errors.ErrInvalidDataFormat},
		{"second perf without first", "TEXT1\nTEXT2|PERF2", errors.ErrInvalidPerfFormat},
		{"two perf continuations", "TEXT1|PERF1\nTEXT2|PERF2\nTEXT3|PERF3", errors.ErrInvalidPerfFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := p.ParseRequest(Request{Body: []byte(tt.body)})
			require.Error(t, err)
			assert.Nil(t, data)
			assert.True(t, errors.IsKind(err, errors.KindFormat))
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestMultiLine_ContextAttrsMustImplement(t *testing.T) {
	p := NewMultiLine("check_test")
	_, err := p.ContextAttrs(&EntityData{Data: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMustImplement)
}

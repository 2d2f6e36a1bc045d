package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemReport(t *testing.T) {
	r := MemReport{
		Name:       "root",
		TotalBytes: 2048,
		Children: []MemReport{
			{Name: "child", TotalBytes: 1024},
		},
	}
	out := r.String()
	require.True(t, strings.HasPrefix(out, "- root:"))
	require.Contains(t, out, "child")
	require.Contains(t, r.JSON(), `"total_bytes":2048`)
}

package tablewriter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Header("ID", "STATUS")
	require.NoError(t, w.Render())
	require.Empty(t, buf.String())
}

func TestAlignedColumns(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Header("ID", "STATUS", "PROGRESS")
	w.Append("exec-1", "running", "40%")
	w.Append("e2", "completed", "100%")
	require.NoError(t, w.Render())

	expected := "ID       STATUS      PROGRESS\n" +
		"exec-1   running     40%\n" +
		"e2       completed   100%\n"
	require.Equal(t, expected, buf.String())
	require.Equal(t, 2, w.Len())
}

func TestANSIAndWideCharacters(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Header("A", "B")
	w.Append("\x1b[31mred\x1b[0m", "x")
	w.Append("日本", "y")
	require.NoError(t, w.Render())

	expected := "A      B\n" +
		"\x1b[31mred\x1b[0m    x\n" +
		"日本   y\n"
	require.Equal(t, expected, buf.String())
}

func TestMissingAndExtraCells(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Header("A", "B")
	w.Append("1")
	w.Append("2", "3", "dropped")
	require.NoError(t, w.Render())

	expected := "A   B\n" +
		"1   \n" +
		"2   3\n"
	require.Equal(t, expected, buf.String())
}

func TestLimitTruncates(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Limit(0, 5)
	w.Append("abcdefghij", "z")
	require.NoError(t, w.Render())
	require.Equal(t, "abcd…   z\n", buf.String())
}

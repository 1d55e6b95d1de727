package annotconv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatYOLO(t *testing.T) {
	img := AnnotatedImage{
		Name: "a",
		Annotations: []Annotation{
			{Class: 2, Box: NormalizedBox{0.5, 0.25, 0.125, 1}},
			{Class: 0, Box: NormalizedBox{1.0 / 3, 2.0 / 3, 0.0000004, 0.9999996}},
		},
	}

	assert.Equal(t, "2 0.500000 0.250000 0.125000 1.000000\n0 0.333333 0.666667 0.000000 1.000000",
		FormatYOLO(img))
	assert.Equal(t, "", FormatYOLO(AnnotatedImage{Name: "empty"}))
}

func TestParseYOLO(t *testing.T) {
	lines, err := ParseYOLO(strings.NewReader("0 0.5 0.5 0.25 0.25\n\n  \n3 0.1 0.2 0.3 0.4\n"))
	require.NoError(t, err)
	assert.Equal(t, []YOLOLine{
		{Class: 0, Box: NormalizedBox{0.5, 0.5, 0.25, 0.25}},
		{Class: 3, Box: NormalizedBox{0.1, 0.2, 0.3, 0.4}},
	}, lines)

	lines, err = ParseYOLO(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestParseYOLOMalformed(t *testing.T) {
	tests := map[string]string{
		"too few values":  "0 0.5 0.5 0.25",
		"too many values": "0 0.5 0.5 0.25 0.25 1",
		"float class":     "0.0 0.5 0.5 0.25 0.25",
		"bad coordinate":  "0 0.5 x 0.25 0.25",
		"nan":             "0 NaN 0.5 0.25 0.25",
		"infinity":        "0 0.5 0.5 +Inf 0.25",
		"overflow":        "0 0.5 0.5 0.25 1e400",
	}

	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseYOLO(strings.NewReader("1 0.5 0.5 0.5 0.5\n" + text))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedAnnotation)
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestWriteYOLO(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "labels")
	img := AnnotatedImage{
		Name:        "weed",
		Annotations: []Annotation{{Class: 1, Box: NormalizedBox{0.5, 0.5, 1, 1}}},
	}

	path, err := WriteYOLO(dir, img)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "weed.txt"), path)

	lines, err := ReadYOLO(path)
	require.NoError(t, err)
	assert.Equal(t, []YOLOLine{{Class: 1, Box: NormalizedBox{0.5, 0.5, 1, 1}}}, lines)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files may be left behind")
}

func TestWriteYOLOMissingName(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteYOLO(dir, AnnotatedImage{FileName: "a.jpg"})
	assert.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

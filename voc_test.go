package annotconv

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vocTwoObjects = `<annotation>
	<folder>Alligatorweed</folder>
	<filename>Alligatorweed (1).jpg</filename>
	<size>
		<width>200</width>
		<height>100</height>
		<depth>3</depth>
	</size>
	<object>
		<name> Alligatorweed </name>
		<bndbox>
			<xmin>50</xmin>
			<ymin>25</ymin>
			<xmax>150</xmax>
			<ymax>75</ymax>
		</bndbox>
	</object>
	<object>
		<name>Asiatic_Smartweed</name>
		<bndbox>
			<xmin>0</xmin>
			<ymin>0</ymin>
			<xmax>200</xmax>
			<ymax>100</ymax>
		</bndbox>
	</object>
</annotation>`

var weedLabels = LabelMap{"Alligatorweed": 0, "Asiatic_Smartweed": 1}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseVOC(t *testing.T) {
	doc, err := ParseVOC(strings.NewReader(vocTwoObjects))
	require.NoError(t, err)

	assert.Equal(t, ImageSize{Width: 200, Height: 100}, doc.Size)
	assert.Equal(t, "Alligatorweed (1).jpg", doc.FileName)
	assert.Equal(t, []VOCObject{
		{Name: "Alligatorweed", Box: PixelBox{50, 25, 150, 75}},
		{Name: "Asiatic_Smartweed", Box: PixelBox{0, 0, 200, 100}},
	}, doc.Objects)
}

func TestParseVOCLatin1(t *testing.T) {
	doc, err := ParseVOC(strings.NewReader("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<annotation><filename>k\xfcrbis.jpg</filename><size><width>10</width><height>10</height></size>" +
		"<object><name>K\xfcrbis</name><bndbox><xmin>1</xmin><ymin>1</ymin><xmax>2</xmax><ymax>2</ymax>" +
		"</bndbox></object></annotation>"))
	require.NoError(t, err)
	assert.Equal(t, "kürbis.jpg", doc.FileName)
	require.Len(t, doc.Objects, 1)
	assert.Equal(t, "Kürbis", doc.Objects[0].Name)
}

func TestParseVOCMalformed(t *testing.T) {
	tests := map[string]string{
		"not xml":        `{"size": 1}`,
		"wrong root":     `<image><size><width>1</width><height>1</height></size></image>`,
		"missing size":   `<annotation><object><name>a</name></object></annotation>`,
		"missing height": `<annotation><size><width>10</width></size></annotation>`,
		"missing bndbox": `<annotation><size><width>10</width><height>10</height></size>
			<object><name>a</name></object></annotation>`,
		"missing name": `<annotation><size><width>10</width><height>10</height></size>
			<object><bndbox><xmin>1</xmin><ymin>1</ymin><xmax>2</xmax><ymax>2</ymax></bndbox></object>
			</annotation>`,
		"float coordinate": `<annotation><size><width>10</width><height>10</height></size>
			<object><name>a</name><bndbox><xmin>1.5</xmin><ymin>1</ymin><xmax>2</xmax><ymax>2</ymax>
			</bndbox></object></annotation>`,
		"missing coordinate": `<annotation><size><width>10</width><height>10</height></size>
			<object><name>a</name><bndbox><xmin>1</xmin><ymin>1</ymin><xmax>2</xmax></bndbox></object>
			</annotation>`,
		"inverted box": `<annotation><size><width>10</width><height>10</height></size>
			<object><name>a</name><bndbox><xmin>5</xmin><ymin>1</ymin><xmax>2</xmax><ymax>2</ymax>
			</bndbox></object></annotation>`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseVOC(strings.NewReader(doc))
			assert.ErrorIs(t, err, ErrMalformedAnnotation)
		})
	}
}

func TestXMLToYOLO(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeTestFile(t, dir, "Alligatorweed (1).xml", vocTwoObjects)
	outDir := filepath.Join(dir, "out", "labels")

	conv := &Converter{Labels: weedLabels}
	out, err := conv.XMLToYOLO(xmlPath, outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "Alligatorweed (1).txt"), out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "0 0.500000 0.500000 0.500000 0.500000\n1 0.500000 0.500000 1.000000 1.000000",
		string(data))
}

func TestXMLToYOLOOverwrites(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeTestFile(t, dir, "a.xml", vocTwoObjects)
	writeTestFile(t, dir, "a.txt", "stale content\n")

	conv := &Converter{Labels: weedLabels}
	out, err := conv.XMLToYOLO(xmlPath, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
}

func TestXMLToYOLONoObjects(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeTestFile(t, dir, "empty.xml",
		`<annotation><size><width>10</width><height>10</height></size></annotation>`)

	out, err := (&Converter{Labels: weedLabels}).XMLToYOLO(xmlPath, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestXMLToYOLOUnknownLabel(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeTestFile(t, dir, "weed.xml", vocTwoObjects)
	outDir := filepath.Join(dir, "out")

	conv := &Converter{Labels: LabelMap{"Foo": 0}}
	_, err := conv.XMLToYOLO(xmlPath, outDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownLabel)
	assert.Contains(t, err.Error(), "Alligatorweed")

	var unknown *UnknownLabelError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "Alligatorweed", unknown.Label)
	assert.Equal(t, []string{"Foo"}, unknown.Known)

	// Nothing may be written for the failed file.
	_, err = os.Stat(filepath.Join(outDir, "weed.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestXMLToYOLOSentinel(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeTestFile(t, dir, "weed.xml", vocTwoObjects)

	conv := &Converter{Labels: LabelMap{"Asiatic_Smartweed": 3}, OnUnknown: SentinelOnUnknown}
	out, err := conv.XMLToYOLO(xmlPath, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "-1 0.500000 0.500000 0.500000 0.500000\n3 0.500000 0.500000 1.000000 1.000000",
		string(data))
}

func TestXMLToYOLOInvalidSize(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeTestFile(t, dir, "zero.xml", `<annotation>
		<size><width>0</width><height>10</height></size>
		<object><name>Alligatorweed</name>
		<bndbox><xmin>1</xmin><ymin>1</ymin><xmax>2</xmax><ymax>2</ymax></bndbox></object>
		</annotation>`)

	_, err := (&Converter{Labels: weedLabels}).XMLToYOLO(xmlPath, dir)
	assert.ErrorIs(t, err, ErrInvalidImageSize)
}

func TestXMLToYOLORenames(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeTestFile(t, dir, "weed.xml", strings.Replace(vocTwoObjects,
		"Asiatic_Smartweed", "Asiatic Smartweed", 1))

	renames, err := ParseLabelRenames([]string{"Asiatic Smartweed=Asiatic_Smartweed"})
	require.NoError(t, err)
	conv := &Converter{Labels: weedLabels, Renames: renames}
	img, err := conv.ReadVOCImage(xmlPath)
	require.NoError(t, err)
	require.Len(t, img.Annotations, 2)
	assert.Equal(t, "Asiatic_Smartweed", img.Annotations[1].Label)
	assert.Equal(t, 1, img.Annotations[1].Class)
}

func TestXMLToYOLOMissingFile(t *testing.T) {
	_, err := (&Converter{}).XMLToYOLO(filepath.Join(t.TempDir(), "nope.xml"), t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

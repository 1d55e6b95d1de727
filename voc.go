package annotconv

// Pascal VOC specific functionality.

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// VOCObject is a single object annotation within a Pascal VOC file.
type VOCObject struct {
	Box  PixelBox
	Name string // Trimmed.
}

// VOCDocument defines the Pascal VOC annotation structure for a single image.
type VOCDocument struct {
	FileName string // The optional <filename> element.
	Objects  []VOCObject
	Size     ImageSize
}

type vocBndBox struct {
	XMin string `xml:"xmin"`
	YMin string `xml:"ymin"`
	XMax string `xml:"xmax"`
	YMax string `xml:"ymax"`
}

type vocXML struct {
	XMLName  xml.Name `xml:"annotation"`
	FileName string   `xml:"filename"`
	Size     *struct {
		Width  string `xml:"width"`
		Height string `xml:"height"`
	} `xml:"size"`
	Objects []struct {
		Name   *string    `xml:"name"`
		BndBox *vocBndBox `xml:"bndbox"`
	} `xml:"object"`
}

// ReadVOC reads and parses the Pascal VOC annotation file at path.
func ReadVOC(path string) (doc VOCDocument, err error) {
	f, err := os.Open(path)
	if err != nil {
		return VOCDocument{}, err
	}
	defer closeWithErrCheck(f, &err)

	return ParseVOC(f)
}

// ParseVOC decodes a Pascal VOC annotation document.
//
// The size element and, for every object, the name and bndbox elements are required. Coordinates
// and dimensions must be integers. Documents may declare any encoding known to the WHATWG
// encoding standard.
func ParseVOC(r io.Reader) (VOCDocument, error) {
	var raw vocXML
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&raw); err != nil {
		return VOCDocument{}, fmt.Errorf("%w: %v", ErrMalformedAnnotation, err)
	}

	if raw.Size == nil {
		return VOCDocument{}, fmt.Errorf("%w: missing size element", ErrMalformedAnnotation)
	}
	var doc VOCDocument
	var err error
	if doc.Size.Width, err = parseVOCInt("size/width", raw.Size.Width); err != nil {
		return VOCDocument{}, err
	}
	if doc.Size.Height, err = parseVOCInt("size/height", raw.Size.Height); err != nil {
		return VOCDocument{}, err
	}
	doc.FileName = strings.TrimSpace(raw.FileName)

	doc.Objects = make([]VOCObject, 0, len(raw.Objects))
	for i, o := range raw.Objects {
		if o.Name == nil {
			return VOCDocument{}, fmt.Errorf("%w: object %d has no name", ErrMalformedAnnotation, i)
		}
		if o.BndBox == nil {
			return VOCDocument{}, fmt.Errorf("%w: object %d (%s) has no bndbox",
				ErrMalformedAnnotation, i, strings.TrimSpace(*o.Name))
		}

		box, err := o.BndBox.pixelBox()
		if err != nil {
			return VOCDocument{}, fmt.Errorf("object %d: %w", i, err)
		}
		doc.Objects = append(doc.Objects, VOCObject{Box: box, Name: strings.TrimSpace(*o.Name)})
	}

	return doc, nil
}

func (b *vocBndBox) pixelBox() (PixelBox, error) {
	var v [4]int
	fields := [4]struct{ name, value string }{
		{"xmin", b.XMin}, {"ymin", b.YMin}, {"xmax", b.XMax}, {"ymax", b.YMax},
	}
	for i, f := range fields {
		n, err := parseVOCInt("bndbox/"+f.name, f.value)
		if err != nil {
			return PixelBox{}, err
		}
		v[i] = n
	}

	box := PixelBox{XMin: v[0], YMin: v[1], XMax: v[2], YMax: v[3]}
	if err := box.Validate(); err != nil {
		return PixelBox{}, err
	}
	return box, nil
}

func parseVOCInt(field, s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedAnnotation, field)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer: %q", ErrMalformedAnnotation, field, s)
	}
	return n, nil
}

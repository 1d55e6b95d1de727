// Package render draws bounding box annotations onto images for visual inspection.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/sensorable/annotconv"
)

// Box is a labelled box in pixel coordinates.
type Box struct {
	Label string
	Rect  annotconv.PixelBox
}

// Renderer draws boxes with a fixed style.
type Renderer struct {
	Color      color.Color
	Names      map[int]string // Optional YOLO class names; class indices are drawn otherwise.
	TextOffset int            // Distance of the label baseline above the box.
	Thickness  int            // Line width of the box outline.
}

// New returns a Renderer drawing red 5px outlines with the label 10px above the box.
func New() *Renderer {
	return &Renderer{
		Color:      color.NRGBA{R: 255, A: 255},
		TextOffset: 10,
		Thickness:  5,
	}
}

// Draw returns a copy of img with the boxes and their labels drawn on it.
//
// Labels are placed TextOffset pixels above their box; the text never goes above the top edge of
// the image.
func (r *Renderer) Draw(img image.Image, boxes []Box) *image.NRGBA {
	dst := imaging.Clone(img)
	src := image.NewUniform(r.Color)
	face := basicfont.Face7x13

	for _, b := range boxes {
		r.drawOutline(dst, src, b.Rect)

		baseline := b.Rect.YMin - r.TextOffset
		if baseline < face.Ascent {
			baseline = face.Ascent
		}
		d := font.Drawer{
			Dst:  dst,
			Src:  src,
			Face: face,
			Dot:  fixed.P(b.Rect.XMin, baseline),
		}
		d.DrawString(b.Label)
	}

	return dst
}

// drawOutline draws the outline of box with its full thickness inside the box.
func (r *Renderer) drawOutline(dst draw.Image, src image.Image, box annotconv.PixelBox) {
	t := r.Thickness
	if t < 1 {
		t = 1
	}
	x0, y0, x1, y1 := box.XMin, box.YMin, box.XMax, box.YMax
	edges := []image.Rectangle{
		image.Rect(x0, y0, x1, y0+t), // Top.
		image.Rect(x0, y1-t, x1, y1), // Bottom.
		image.Rect(x0, y0, x0+t, y1), // Left.
		image.Rect(x1-t, y0, x1, y1), // Right.
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// VOC loads the image at imagePath and draws the objects of the Pascal VOC file at xmlPath.
func (r *Renderer) VOC(imagePath, xmlPath string) (*image.NRGBA, error) {
	doc, err := annotconv.ReadVOC(xmlPath)
	if err != nil {
		return nil, err
	}
	img, err := Load(imagePath)
	if err != nil {
		return nil, err
	}

	boxes := make([]Box, len(doc.Objects))
	for i, o := range doc.Objects {
		boxes[i] = Box{Label: o.Name, Rect: o.Box}
	}
	return r.Draw(img, boxes), nil
}

// YOLO loads the image at imagePath and draws the boxes of the YOLO file at txtPath. The
// normalized boxes are scaled to the loaded image's dimensions.
func (r *Renderer) YOLO(imagePath, txtPath string) (*image.NRGBA, error) {
	lines, err := annotconv.ReadYOLO(txtPath)
	if err != nil {
		return nil, err
	}
	img, err := Load(imagePath)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	size := annotconv.ImageSize{Width: bounds.Dx(), Height: bounds.Dy()}
	boxes := make([]Box, len(lines))
	for i, l := range lines {
		rect, err := annotconv.ToPixel(size, l.Box)
		if err != nil {
			return nil, err
		}
		boxes[i] = Box{Label: r.className(l.Class), Rect: rect}
	}
	return r.Draw(img, boxes), nil
}

// COCO loads the image at imagePath and draws the annotations of the COCO document at jsonPath
// that belong to it. The image is matched by the base name of its file_name.
func (r *Renderer) COCO(imagePath, jsonPath string) (*image.NRGBA, error) {
	ds, err := annotconv.ReadCOCO(jsonPath)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(imagePath)
	var imageID int64
	found := false
	for _, img := range ds.Images {
		if filepath.Base(img.FileName) == name {
			imageID, found = img.ID, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("image %q is not listed in %q", name, jsonPath)
	}

	categories := make(map[int]string, len(ds.Categories))
	for _, c := range ds.Categories {
		categories[c.ID] = c.Name
	}

	img, err := Load(imagePath)
	if err != nil {
		return nil, err
	}

	var boxes []Box
	for _, a := range ds.Annotations {
		if a.ImageID != imageID {
			continue
		}
		label, ok := categories[a.CategoryID]
		if !ok {
			label = strconv.Itoa(a.CategoryID)
		}
		x, y, w, h := a.BBox[0], a.BBox[1], a.BBox[2], a.BBox[3]
		boxes = append(boxes, Box{
			Label: label,
			Rect: annotconv.PixelBox{
				XMin: int(math.Round(x)),
				YMin: int(math.Round(y)),
				XMax: int(math.Round(x + w)),
				YMax: int(math.Round(y + h)),
			},
		})
	}
	return r.Draw(img, boxes), nil
}

func (r *Renderer) className(class int) string {
	if name, ok := r.Names[class]; ok {
		return name
	}
	return strconv.Itoa(class)
}

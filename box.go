package annotconv

// Bounding box representations and the conversions between them.

import (
	"fmt"
	"math"
)

// ImageSize is the width and height of an image in pixels.
type ImageSize struct {
	Width  int
	Height int
}

// Validate returns an error wrapping ErrInvalidImageSize if either dimension is not positive.
func (s ImageSize) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidImageSize, s.Width, s.Height)
	}
	return nil
}

// PixelBox is a Pascal VOC style bounding box with absolute corner coordinates in pixels.
type PixelBox struct {
	XMin, YMin, XMax, YMax int
}

// Values returns the coordinates in the order xmin, ymin, xmax, ymax.
func (b PixelBox) Values() [4]int {
	return [4]int{b.XMin, b.YMin, b.XMax, b.YMax}
}

// Validate returns an error wrapping ErrMalformedAnnotation if the corners are inverted.
func (b PixelBox) Validate() error {
	if b.XMin > b.XMax || b.YMin > b.YMax {
		return fmt.Errorf("%w: inverted box (%d,%d)(%d,%d)",
			ErrMalformedAnnotation, b.XMin, b.YMin, b.XMax, b.YMax)
	}
	return nil
}

// NormalizedBox is a YOLO style bounding box. All values are ratios of the image size and may lie
// outside [0, 1] for boxes that extend beyond the image.
type NormalizedBox struct {
	XCenter, YCenter, Width, Height float64
}

// Values returns the coordinates in the order x_center, y_center, width, height.
func (b NormalizedBox) Values() [4]float64 {
	return [4]float64{b.XCenter, b.YCenter, b.Width, b.Height}
}

// ToNormalized converts a pixel box to a normalized box relative to size.
func ToNormalized(size ImageSize, box PixelBox) (NormalizedBox, error) {
	if err := size.Validate(); err != nil {
		return NormalizedBox{}, err
	}
	return normalizeCorners(size, float64(box.XMin), float64(box.YMin), float64(box.XMax),
		float64(box.YMax)), nil
}

// NormalizeXYWH converts a COCO style box, given as the top-left corner and the box size in
// pixels, to a normalized box relative to size.
func NormalizeXYWH(size ImageSize, x, y, width, height float64) (NormalizedBox, error) {
	if err := size.Validate(); err != nil {
		return NormalizedBox{}, err
	}
	return normalizeCorners(size, x, y, x+width, y+height), nil
}

func normalizeCorners(size ImageSize, xmin, ymin, xmax, ymax float64) NormalizedBox {
	w := float64(size.Width)
	h := float64(size.Height)
	return NormalizedBox{
		XCenter: (xmin + xmax) / 2 / w,
		YCenter: (ymin + ymax) / 2 / h,
		Width:   (xmax - xmin) / w,
		Height:  (ymax - ymin) / h,
	}
}

// ToPixel converts a normalized box to pixel corners relative to size.
//
// The corners are rounded half away from zero. Boxes are not clipped to the image bounds.
func ToPixel(size ImageSize, box NormalizedBox) (PixelBox, error) {
	if err := size.Validate(); err != nil {
		return PixelBox{}, err
	}

	w := float64(size.Width)
	h := float64(size.Height)
	halfW := box.Width * w / 2
	halfH := box.Height * h / 2

	return PixelBox{
		XMin: int(math.Round(w*box.XCenter - halfW)),
		YMin: int(math.Round(h*box.YCenter - halfH)),
		XMax: int(math.Round(w*box.XCenter + halfW)),
		YMax: int(math.Round(h*box.YCenter + halfH)),
	}, nil
}

package annotconv

// COCO specific functionality.

import (
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// COCOImage is an entry of the COCO images list.
type COCOImage struct {
	FileName string `json:"file_name"`
	Height   int    `json:"height"`
	ID       int64  `json:"id"`
	Width    int    `json:"width"`
}

// COCOAnnotation is an entry of the COCO annotations list. BBox is [x, y, width, height] in pixels.
type COCOAnnotation struct {
	BBox       []float64 `json:"bbox"`
	CategoryID int       `json:"category_id"`
	ID         int64     `json:"id"`
	ImageID    int64     `json:"image_id"`
}

// COCOCategory is an entry of the optional COCO categories list.
type COCOCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// COCODataset defines the parts of a COCO object detection document used for conversion.
type COCODataset struct {
	Annotations []COCOAnnotation `json:"annotations"`
	Categories  []COCOCategory   `json:"categories"`
	Images      []COCOImage      `json:"images"`
}

// The decoded form of a COCO document. Required fields are pointers so that a missing field can
// be told apart from a zero value.
type cocoDocument struct {
	Annotations []cocoAnnotation `json:"annotations" validate:"dive"`
	Categories  []cocoCategory   `json:"categories" validate:"dive"`
	Images      []cocoImage      `json:"images" validate:"dive"`
}

type cocoImage struct {
	FileName string `json:"file_name" validate:"required"`
	Height   *int   `json:"height" validate:"required"`
	ID       *int64 `json:"id" validate:"required"`
	Width    *int   `json:"width" validate:"required"`
}

type cocoAnnotation struct {
	BBox       []float64 `json:"bbox" validate:"len=4"`
	CategoryID *int      `json:"category_id" validate:"required"`
	ID         int64     `json:"id"`
	ImageID    *int64    `json:"image_id" validate:"required"`
}

type cocoCategory struct {
	ID   *int   `json:"id" validate:"required"`
	Name string `json:"name"`
}

var validate = validator.New()

// ReadCOCO reads and parses the COCO document at path.
func ReadCOCO(path string) (ds COCODataset, err error) {
	f, err := os.Open(path)
	if err != nil {
		return COCODataset{}, err
	}
	defer closeWithErrCheck(f, &err)

	return ParseCOCO(f)
}

// ParseCOCO decodes a COCO document and checks the fields needed for conversion: image id, size
// and file name, annotation image id, category id and a 4 value bbox with non-negative size.
func ParseCOCO(r io.Reader) (COCODataset, error) {
	var doc cocoDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return COCODataset{}, fmt.Errorf("%w: %v", ErrMalformedAnnotation, err)
	}
	if err := validate.Struct(doc); err != nil {
		return COCODataset{}, fmt.Errorf("%w: %v", ErrMalformedAnnotation, err)
	}

	ds := COCODataset{
		Annotations: make([]COCOAnnotation, len(doc.Annotations)),
		Categories:  make([]COCOCategory, len(doc.Categories)),
		Images:      make([]COCOImage, len(doc.Images)),
	}
	for i, img := range doc.Images {
		ds.Images[i] = COCOImage{FileName: img.FileName, Height: *img.Height, ID: *img.ID, Width: *img.Width}
	}
	for i, a := range doc.Annotations {
		ds.Annotations[i] = COCOAnnotation{BBox: a.BBox, CategoryID: *a.CategoryID, ID: a.ID,
			ImageID: *a.ImageID}
		if err := ds.Annotations[i].validateBBox(); err != nil {
			return COCODataset{}, err
		}
	}
	for i, c := range doc.Categories {
		ds.Categories[i] = COCOCategory{ID: *c.ID, Name: c.Name}
	}

	return ds, nil
}

// validateBBox checks that the bbox has 4 values and a non-negative width and height.
func (a COCOAnnotation) validateBBox() error {
	if len(a.BBox) != 4 {
		return fmt.Errorf("%w: annotation %d has a bbox with %d values",
			ErrMalformedAnnotation, a.ID, len(a.BBox))
	}
	if a.BBox[2] < 0 || a.BBox[3] < 0 {
		return fmt.Errorf("%w: annotation %d has a bbox with negative size %vx%v",
			ErrMalformedAnnotation, a.ID, a.BBox[2], a.BBox[3])
	}
	return nil
}

// groupByImage returns the annotations of each image, keyed by image id. Every image has an entry,
// possibly empty. Annotations referring to unknown images fail the whole dataset.
func (ds *COCODataset) groupByImage() (map[int64][]COCOAnnotation, error) {
	groups := make(map[int64][]COCOAnnotation, len(ds.Images))
	for _, img := range ds.Images {
		if _, dup := groups[img.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate image id %d", ErrMalformedAnnotation, img.ID)
		}
		groups[img.ID] = nil
	}

	for _, a := range ds.Annotations {
		anns, ok := groups[a.ImageID]
		if !ok {
			return nil, &DanglingReferenceError{AnnotationID: a.ID, ImageID: a.ImageID}
		}
		groups[a.ImageID] = append(anns, a)
	}

	return groups, nil
}

// categoryNames maps category ids to names.
func (ds *COCODataset) categoryNames() map[int]string {
	names := make(map[int]string, len(ds.Categories))
	for _, c := range ds.Categories {
		names[c.ID] = c.Name
	}
	return names
}

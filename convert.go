package annotconv

// Conversion of Pascal VOC and COCO annotations to YOLO.

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

// Converter converts annotation files to YOLO. The mappings are only read, so a Converter may be
// used from multiple goroutines.
type Converter struct {
	Categories CategoryMap        // COCO category id to class index.
	FailFast   bool               // Stop starting new batch work after the first failure.
	Labels     LabelMap           // VOC object name to class index.
	OnUnknown  UnknownLabelPolicy // What to do with labels missing from the mappings.
	Renames    []LabelRename      // Substring replacements applied, in order, to VOC names.
	Workers    int                // Concurrent conversions in batch mode; <= 0 picks a default.
}

// ConvertVOC maps the objects of doc to YOLO annotations. name becomes the output base name.
func (c *Converter) ConvertVOC(name string, doc VOCDocument) (AnnotatedImage, error) {
	if err := doc.Size.Validate(); err != nil {
		return AnnotatedImage{}, err
	}

	img := AnnotatedImage{
		Annotations: make([]Annotation, 0, len(doc.Objects)),
		FileName:    doc.FileName,
		Name:        name,
		Size:        doc.Size,
	}
	for _, o := range doc.Objects {
		label := applyLabelRenames(o.Name, c.Renames)
		idx, err := c.Labels.Index(label)
		if idx, err = c.resolveUnknown(name, label, idx, err); err != nil {
			return AnnotatedImage{}, err
		}

		box, err := ToNormalized(doc.Size, o.Box)
		if err != nil {
			return AnnotatedImage{}, err
		}
		img.Annotations = append(img.Annotations, Annotation{Label: label, Class: idx, Box: box})
	}

	return img, nil
}

// ReadVOCImage reads the Pascal VOC file at path and converts it. The output base name is the
// base name of path.
func (c *Converter) ReadVOCImage(path string) (AnnotatedImage, error) {
	doc, err := ReadVOC(path)
	if err != nil {
		return AnnotatedImage{}, err
	}
	return c.ConvertVOC(stem(path), doc)
}

// XMLToYOLO converts the Pascal VOC file at xmlPath to <outDir>/<xml base name>.txt. Nothing is
// written if the conversion fails. Returns the path of the written file.
func (c *Converter) XMLToYOLO(xmlPath, outDir string) (string, error) {
	img, err := c.ReadVOCImage(xmlPath)
	if err != nil {
		return "", err
	}
	return WriteYOLO(outDir, img)
}

// ConvertCOCOImage converts the annotations of one COCO image. The output base name is the base
// name of the image file name. categoryNames may be nil.
func (c *Converter) ConvertCOCOImage(img COCOImage, anns []COCOAnnotation,
	categoryNames map[int]string) (AnnotatedImage, error) {

	size := ImageSize{Width: img.Width, Height: img.Height}
	if err := size.Validate(); err != nil {
		return AnnotatedImage{}, err
	}

	out := AnnotatedImage{
		Annotations: make([]Annotation, 0, len(anns)),
		FileName:    img.FileName,
		Name:        stem(img.FileName),
		Size:        size,
	}
	for _, a := range anns {
		if a.ImageID != img.ID {
			return AnnotatedImage{}, &DanglingReferenceError{AnnotationID: a.ID, ImageID: a.ImageID}
		}
		if err := a.validateBBox(); err != nil {
			return AnnotatedImage{}, err
		}

		label, ok := categoryNames[a.CategoryID]
		if !ok {
			label = strconv.Itoa(a.CategoryID)
		}
		idx, err := c.Categories.Index(a.CategoryID)
		if idx, err = c.resolveUnknown(img.FileName, label, idx, err); err != nil {
			return AnnotatedImage{}, err
		}

		box, err := NormalizeXYWH(size, a.BBox[0], a.BBox[1], a.BBox[2], a.BBox[3])
		if err != nil {
			return AnnotatedImage{}, err
		}
		out.Annotations = append(out.Annotations, Annotation{Label: label, Class: idx, Box: box})
	}

	return out, nil
}

// JSONToYOLO converts the COCO document at jsonPath to one YOLO file per image in outDir. Images
// without annotations produce empty files.
//
// Document level failures (unreadable or malformed JSON, dangling image references) are returned
// as error and nothing is written. Otherwise the images are converted concurrently and a Result is
// returned for each of them, in the order of the images list.
func (c *Converter) JSONToYOLO(ctx context.Context, jsonPath, outDir string) (Results, error) {
	return c.convertCOCO(ctx, jsonPath, func(_ int, img AnnotatedImage) (string, error) {
		return WriteYOLO(outDir, img)
	})
}

// ReadCOCOImages reads and converts the COCO document at jsonPath without writing anything. The
// successfully converted images are returned in the order of the images list, along with a Result
// per image.
func (c *Converter) ReadCOCOImages(ctx context.Context, jsonPath string) (
	[]AnnotatedImage, Results, error) {

	var mu sync.Mutex
	converted := make(map[int]AnnotatedImage)
	results, err := c.convertCOCO(ctx, jsonPath, func(i int, img AnnotatedImage) (string, error) {
		mu.Lock()
		converted[i] = img
		mu.Unlock()
		return "", nil
	})
	if err != nil {
		return nil, nil, err
	}

	images := make([]AnnotatedImage, 0, len(converted))
	for i := range results {
		if img, ok := converted[i]; ok {
			images = append(images, img)
		}
	}
	return images, results, nil
}

// convertCOCO reads the COCO document at jsonPath, converts its images concurrently and passes
// each converted image to sink.
func (c *Converter) convertCOCO(ctx context.Context, jsonPath string,
	sink func(i int, img AnnotatedImage) (string, error)) (Results, error) {

	ds, err := ReadCOCO(jsonPath)
	if err != nil {
		return nil, &FileError{Path: jsonPath, Err: err}
	}
	groups, err := ds.groupByImage()
	if err != nil {
		return nil, &FileError{Path: jsonPath, Err: err}
	}
	warnOutputCollisions(jsonPath, ds.Images)

	names := ds.categoryNames()
	sources := make([]string, len(ds.Images))
	for i, img := range ds.Images {
		sources[i] = jsonPath + "#" + img.FileName
	}

	results := c.runPool(ctx, sources, func(i int) Result {
		img := ds.Images[i]
		converted, err := c.ConvertCOCOImage(img, groups[img.ID], names)
		if err != nil {
			return Result{Err: err}
		}
		out, err := sink(i, converted)
		return Result{Output: out, Boxes: len(converted.Annotations), Err: err}
	})

	return results, nil
}

// resolveUnknown applies the unknown label policy to the result of a mapping lookup.
func (c *Converter) resolveUnknown(source, label string, idx int, err error) (int, error) {
	if err == nil {
		return idx, nil
	}
	if c.OnUnknown == SentinelOnUnknown && errors.Is(err, ErrUnknownLabel) {
		logger.WithFields(logrus.Fields{"file": source, "label": label}).
			Warn("Unknown label, writing the sentinel class")
		return SentinelClass, nil
	}
	return SentinelClass, err
}

// warnOutputCollisions logs images whose YOLO output files would overwrite each other.
func warnOutputCollisions(jsonPath string, images []COCOImage) {
	seen := make(map[string]string, len(images))
	for _, img := range images {
		name := stem(img.FileName)
		if prev, ok := seen[name]; ok {
			logger.WithFields(logrus.Fields{"file": jsonPath, "image": img.FileName, "previous": prev}).
				Warn("Images share an output file name, the last write wins")
			continue
		}
		seen[name] = img.FileName
	}
}

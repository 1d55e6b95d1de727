package annotconv

// The intermediate annotation representation shared by the readers and writers.

import (
	"path/filepath"
	"strings"
)

// Annotation is a single labelled object box.
type Annotation struct {
	Label string        // Source label: VOC object name or COCO category name (or id).
	Class int           // YOLO class index, SentinelClass if the label was unknown.
	Box   NormalizedBox // Normalized YOLO coordinates.
}

// AnnotatedImage is the annotation metadata of one image. It is built from one VOC file or one
// COCO image group and consumed by exactly one writer.
type AnnotatedImage struct {
	Annotations []Annotation
	FileName    string    // The image file name as recorded in the source annotation, if any.
	Name        string    // Base name for output files, without extension.
	Size        ImageSize // Image dimensions in pixels.
}

// OutputName returns the YOLO file name for img.
func (img AnnotatedImage) OutputName() string {
	return img.Name + ".txt"
}

// stem returns the base name of path with its extension removed.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

package annotconv

import (
	"errors"
	"fmt"
	"strings"
)

// Conversion failures. Use errors.Is to test for them; the typed errors below match the
// corresponding sentinel.
var (
	ErrInvalidImageSize    = errors.New("invalid image size")
	ErrMalformedAnnotation = errors.New("malformed annotation")
	ErrUnknownLabel        = errors.New("unknown label")
	ErrDanglingReference   = errors.New("dangling image reference")
)

// UnknownLabelError reports a label or category that is absent from the label mapping.
type UnknownLabelError struct {
	Label string   // The offending VOC name or COCO category id.
	Known []string // The sorted keys of the mapping.
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("%s: %q not found in [%s]", ErrUnknownLabel, e.Label,
		strings.Join(e.Known, ", "))
}

// Is makes errors.Is(err, ErrUnknownLabel) hold.
func (e *UnknownLabelError) Is(target error) bool {
	return target == ErrUnknownLabel
}

// DanglingReferenceError reports a COCO annotation that refers to an image id missing from the
// images list.
type DanglingReferenceError struct {
	AnnotationID int64
	ImageID      int64
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s: annotation %d refers to image %d", ErrDanglingReference,
		e.AnnotationID, e.ImageID)
}

// Is makes errors.Is(err, ErrDanglingReference) hold.
func (e *DanglingReferenceError) Is(target error) bool {
	return target == ErrDanglingReference
}

// FileError attaches the source of a failed conversion to the underlying error.
type FileError struct {
	Path string // The source file, or "<json file>#<image file name>" for COCO images.
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

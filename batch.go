package annotconv

// Concurrent batch conversion.

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// Result is the outcome of converting one source file or COCO image.
type Result struct {
	Boxes  int    // The number of converted boxes.
	Err    error  // A *FileError on failure.
	Output string // The written file, if any.
	Source string // The source file, or "<json file>#<image file name>" for COCO images.
}

// Results is the outcome of a batch conversion, in input order.
type Results []Result

// Failed returns the failed results.
func (rs Results) Failed() Results {
	var failed Results
	for _, r := range rs {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Boxes returns the total number of converted boxes.
func (rs Results) Boxes() int {
	n := 0
	for _, r := range rs {
		n += r.Boxes
	}
	return n
}

// Err joins the errors of all failed results. It is nil if every conversion succeeded.
func (rs Results) Err() error {
	var errs []error
	for _, r := range rs.Failed() {
		errs = append(errs, r.Err)
	}
	return errors.Join(errs...)
}

// BatchXMLToYOLO converts the Pascal VOC files at xmlPaths to YOLO files in outDir. Every file is
// converted independently; a failure is reported in that file's Result only, unless c.FailFast
// is set, in which case files not yet started are reported as canceled.
func (c *Converter) BatchXMLToYOLO(ctx context.Context, xmlPaths []string, outDir string) Results {
	return c.runPool(ctx, xmlPaths, func(i int) Result {
		img, err := c.ReadVOCImage(xmlPaths[i])
		if err != nil {
			return Result{Err: err}
		}
		out, err := WriteYOLO(outDir, img)
		return Result{Output: out, Boxes: len(img.Annotations), Err: err}
	})
}

// DirXMLToYOLO converts all .xml files found directly in xmlDir to YOLO files in outDir.
func (c *Converter) DirXMLToYOLO(ctx context.Context, xmlDir, outDir string) (Results, error) {
	xmlPaths, err := filesByExtInDir(xmlDir, ".xml")
	if err != nil {
		return nil, err
	}
	logger.WithField("dir", xmlDir).Infof("Converting %d Pascal VOC files", len(xmlPaths))

	return c.BatchXMLToYOLO(ctx, xmlPaths, outDir), nil
}

// ReadVOCImages reads and converts the Pascal VOC files at xmlPaths without writing anything. The
// successfully converted images are returned in input order, along with a Result per file.
func (c *Converter) ReadVOCImages(ctx context.Context, xmlPaths []string) (
	[]AnnotatedImage, Results) {

	converted := make([]AnnotatedImage, len(xmlPaths))
	results := c.runPool(ctx, xmlPaths, func(i int) Result {
		img, err := c.ReadVOCImage(xmlPaths[i])
		if err != nil {
			return Result{Err: err}
		}
		converted[i] = img
		return Result{Boxes: len(img.Annotations)}
	})

	images := make([]AnnotatedImage, 0, len(xmlPaths))
	for i, r := range results {
		if r.Err == nil {
			images = append(images, converted[i])
		}
	}
	return images, results
}

// workers returns the number of goroutines for n work items.
func (c *Converter) workers(n int) int {
	numTasks := c.Workers
	if numTasks <= 0 {
		numTasks = 2 * runtime.NumCPU()
	}
	if n < numTasks {
		numTasks = n
	}
	return numTasks
}

// runPool calls convert for every index of sources from a bounded number of goroutines and
// returns the results in input order. Source and error wrapping are filled in here.
func (c *Converter) runPool(ctx context.Context, sources []string, convert func(i int) Result) Results {
	results := make(Results, len(sources))
	if len(sources) == 0 {
		return results
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numTasks := c.workers(len(sources))
	workQueue := make(chan int, 2*numTasks)
	var wg sync.WaitGroup

	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for idx := range workQueue {
				source := sources[idx]

				// Skip the remaining work once canceled.
				if err := ctx.Err(); err != nil {
					results[idx] = Result{Err: &FileError{Path: source, Err: err}, Source: source}
					continue
				}

				r := convert(idx)
				r.Source = source
				if r.Err != nil {
					r.Err = &FileError{Path: source, Err: r.Err}
					logger.WithFields(logrus.Fields{"file": source, "error": r.Err}).
						Warn("Conversion failed")
					if c.FailFast {
						cancel()
					}
				} else {
					logger.WithFields(logrus.Fields{"file": source, "boxes": r.Boxes}).Debug("Converted")
				}
				results[idx] = r
			}
		}()
	}

	// Feed the work queue.
	for i := range sources {
		workQueue <- i
	}
	close(workQueue)

	wg.Wait()
	return results
}

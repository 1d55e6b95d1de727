package annotconv

// TFRecord object detection specific functionality.

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
	"github.com/sirupsen/logrus"
)

// newTFExample builds the Example for a feature map. It panics on unsupported value types.
var newTFExample = func(f TFFeatureMap) *tensorflow.Example { return example.New(f) }

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFFeatures converts one image to the TF object detection feature map. Class ids are the YOLO
// class index plus one, as id 0 is reserved for the background class.
func toTFFeatures(img AnnotatedImage, imageDir string, names map[int]string) (TFFeatureMap, error) {
	if img.FileName == "" {
		return nil, fmt.Errorf("no image file name recorded for %q", img.Name)
	}
	if err := img.Size.Validate(); err != nil {
		return nil, err
	}

	// Read the image data.
	imagePath := filepath.Join(imageDir, filepath.Base(img.FileName))
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(imagePath)), ".")
	if format == "jpg" {
		format = "jpeg"
	}

	// Prepare the feature map for the per file data.
	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Size.Height
	f["image/width"] = img.Size.Width
	f["image/filename"] = img.FileName
	f["image/source_id"] = img.FileName
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per label data.
	numLabels := len(img.Annotations)
	xmins := make([]float32, 0, numLabels)
	ymins := make([]float32, 0, numLabels)
	xmaxs := make([]float32, 0, numLabels)
	ymaxs := make([]float32, 0, numLabels)
	classes := make([]string, 0, numLabels)
	classIDs := make([]int64, 0, numLabels)
	for _, a := range img.Annotations {
		if a.Class < 0 {
			logger.WithFields(logrus.Fields{"image": img.FileName, "label": a.Label}).
				Warn("Skipping annotation with the sentinel class")
			continue
		}

		b := a.Box
		xmins = append(xmins, float32(b.XCenter-b.Width/2))
		ymins = append(ymins, float32(b.YCenter-b.Height/2))
		xmaxs = append(xmaxs, float32(b.XCenter+b.Width/2))
		ymaxs = append(ymaxs, float32(b.YCenter+b.Height/2))

		name, ok := names[a.Class]
		if !ok {
			name = a.Label
		}
		classes = append(classes, name)
		classIDs = append(classIDs, int64(a.Class)+1)
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the annotation data
// to one or more TFRecord files stored under recordFilePath (with suffixes added when numShards>1).
// The encoded images are read from imageDir.
//
// names maps class indices to class names. A label map with an entry per name is written to
// labelMapPath.
func WriteTFRecord(recordFilePath, labelMapPath, imageDir string, images []AnnotatedImage,
	names map[int]string, numShards int) (err error) {
	var shardFile *os.File
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
		if shardFile != nil {
			if cerr := shardFile.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}
	if len(images) > 0 && numShards > len(images) {
		logger.Warnf("Reducing the number of shards from %d to %d, one per image", numShards,
			len(images))
		numShards = len(images)
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	shardIdx := -1

	// Convert and serialise one image at a time.
	for i, img := range images {
		// Check if a new shard file needs to be opened for writing. Every shard gets at least one
		// image and the shard sizes differ by at most one.
		if idx := i * numShards / len(images); idx != shardIdx {
			shardIdx = idx

			// Close the previous shard file.
			if shardFile != nil {
				f := shardFile
				shardFile = nil
				if err := f.Close(); err != nil {
					return err
				}
			}

			// Create the new shard file.
			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %w", shardPath, err)
			}
			shardFile = f
		}

		// Convert the image data to an example.
		features, err := toTFFeatures(img, imageDir, names)
		if err != nil {
			logger.WithFields(logrus.Fields{"image": img.FileName, "error": err}).
				Warn("Failed to convert to a TensorFlow Example")
			continue
		}
		tfExample := newTFExample(features)

		// Write the example.
		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			return fmt.Errorf("failed to write example for %q: %w", img.FileName, err)
		}
	}

	if shardFile != nil {
		f := shardFile
		shardFile = nil
		if err := f.Close(); err != nil {
			return err
		}
	}

	return saveTFRecordLabelMap(labelMapPath, names)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// formatTFRecordLabelMap renders names in the StringIntLabelMap prototxt form, ordered by id.
func formatTFRecordLabelMap(names map[int]string) string {
	indices := make([]int, 0, len(names))
	for i := range names {
		if i >= 0 {
			indices = append(indices, i)
		}
	}
	sort.Ints(indices)

	var b strings.Builder
	for _, i := range indices {
		fmt.Fprintf(&b, "item {\n  name: %s\n  id: %d\n}\n", strconv.Quote(names[i]), i+1)
	}
	return b.String()
}

// saveTFRecordLabelMap writes the label map for names to path.
func saveTFRecordLabelMap(path string, names map[int]string) error {
	if err := os.WriteFile(path, []byte(formatTFRecordLabelMap(names)), 0644); err != nil {
		return fmt.Errorf("failed to write the label map %q: %w", path, err)
	}
	return nil
}

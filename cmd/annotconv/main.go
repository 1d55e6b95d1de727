// Converts Pascal VOC and COCO bounding box annotations to YOLO or TFRecord.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sensorable/annotconv"
	"github.com/sensorable/annotconv/internal/logging"
)

var (
	convertFrom format // The source format.
	convertTo   format // The target format.

	labelFileOrDirPath       string // The input label directory or file, depending on the format.
	labelOutFileOrDirPath    string // The output label directory or file, depending on the format.
	labelMapFilePath         string // The YAML or JSON label mapping.
	imageDirPath             string // The image directory (tfrecord only).
	tfRecordLabelMapFilePath string // The TFRecord label map output file.
	numShardFiles            int    // The number of shard files to create.

	labelRenames  []annotconv.LabelRename      // The parsed -map-labels renames.
	unknownLabel  annotconv.UnknownLabelPolicy // The policy for labels missing from the mapping.
	numWorkers    int                          // Concurrent conversions.
	failFast      bool                         // Stop after the first failed file.

	logFilePath string // Optional log file.
	logLevel    string // The logrus level.
)

type format int

// The known label formats.
const (
	Unknown format = iota // If an unknown format is specified.
	COCO
	TFRecord
	VOC
	YOLO
)

func formatFrom(s string) format {
	switch s {
	case "coco":
		return COCO
	case "tfrecord":
		return TFRecord
	case "voc":
		return VOC
	case "yolo":
		return YOLO
	}
	return Unknown
}

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  voc input options:\t\t-labels <dir|file> -label-map <file>")
		_, _ = fmt.Fprintln(os.Stderr, "  coco input options:\t\t-labels <file> -label-map <file>")
		_, _ = fmt.Fprintln(os.Stderr, "  yolo output options:\t\t-labels-out <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  tfrecord output options:\t-labels-out <file> -images <dir>"+
			" -tfrecord-label-map-file <file> [-num-shards]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		_, _ = fmt.Fprintln(os.Stderr, msg...)
		flag.Usage()
		os.Exit(2)
	}

	// Format arguments.
	from := flag.String("from", "", "The source `format` {voc, coco}")
	to := flag.String("to", "yolo", "The target `format` {yolo, tfrecord}")

	// Path arguments.
	flag.StringVar(&labelFileOrDirPath, "labels", labelFileOrDirPath,
		"The `path` to the label input file (voc, coco) or directory (voc)")
	flag.StringVar(&labelOutFileOrDirPath, "labels-out", labelOutFileOrDirPath,
		"The `path` to the label output directory (yolo) or file (tfrecord)")
	flag.StringVar(&labelMapFilePath, "label-map", labelMapFilePath,
		"The YAML or JSON `file` mapping VOC names or COCO category ids to YOLO class indices")
	flag.StringVar(&imageDirPath, "images", imageDirPath,
		"The `path` to the image directory (tfrecord only)")
	flag.StringVar(&tfRecordLabelMapFilePath, "tfrecord-label-map-file", tfRecordLabelMapFilePath,
		"The TFRecord label map file `path`")
	flag.IntVar(&numShardFiles, "num-shards", 1,
		"The number of shard files to create (tfrecord only)")

	// Conversion arguments.
	labelMappings := flag.String("map-labels", "",
		"Comma-separated list of old=new label (sub-)string replacements (voc only)")
	unknown := flag.String("unknown-label", "fail",
		"What to do with labels missing from the label map {fail, sentinel}")
	flag.IntVar(&numWorkers, "workers", 0,
		"The number of concurrent conversions (zero picks twice the number of CPUs)")
	flag.BoolVar(&failFast, "fail-fast", failFast,
		"Stop converting further files after the first failure")

	// Logging arguments.
	flag.StringVar(&logFilePath, "log-file", logFilePath, "An optional log `file`")
	flag.StringVar(&logLevel, "log-level", "info", "The log `level`")

	// Parse and validate flags.
	flag.Parse()

	convertFrom = formatFrom(*from)
	convertTo = formatFrom(*to)

	// Validate the conversion direction.
	if convertFrom != VOC && convertFrom != COCO {
		printUsageAndExit("Unsupported input format")
	} else if convertTo != YOLO && convertTo != TFRecord {
		printUsageAndExit("Unsupported output format")
	}

	var err error
	if unknownLabel, err = annotconv.ParseUnknownLabelPolicy(*unknown); err != nil {
		printUsageAndExit(err)
	}
	if *labelMappings != "" {
		if labelRenames, err = annotconv.ParseLabelRenames(strings.Split(*labelMappings, ",")); err != nil {
			printUsageAndExit(err)
		}
	}

	// Validate path arguments.
	if labelFileOrDirPath == "" || labelOutFileOrDirPath == "" || labelMapFilePath == "" {
		printUsageAndExit("Missing label input, output or label map path argument")
	}
	if convertTo == TFRecord && (imageDirPath == "" || tfRecordLabelMapFilePath == "") {
		printUsageAndExit("Missing image directory or TFRecord label map path argument")
	}

	labelFileOrDirPath = filepath.Clean(labelFileOrDirPath)
	labelOutFileOrDirPath = filepath.Clean(labelOutFileOrDirPath)
	if labelFileOrDirPath == labelOutFileOrDirPath {
		printUsageAndExit("The label input and output paths cannot be identical")
	}
}

func main() {
	base, err := logging.New(logging.Options{File: logFilePath, Level: logLevel})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Invalid logging options:", err)
		os.Exit(2)
	}
	log := base.WithField("run_id", uuid.NewString())
	annotconv.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conv := &annotconv.Converter{
		FailFast:  failFast,
		OnUnknown: unknownLabel,
		Renames:   labelRenames,
		Workers:   numWorkers,
	}

	// Load the label mapping.
	var names map[int]string
	switch convertFrom {
	case VOC:
		if conv.Labels, err = annotconv.LoadLabelMap(labelMapFilePath); err == nil {
			names = conv.Labels.Names()
		}
	case COCO:
		conv.Categories, err = annotconv.LoadCategoryMap(labelMapFilePath)
	}
	if err != nil {
		log.Fatal("Failed to load the label map: ", err)
	}

	var results annotconv.Results
	switch {
	case convertFrom == VOC && convertTo == YOLO:
		results, err = convertVOC(ctx, conv)
	case convertFrom == COCO && convertTo == YOLO:
		results, err = conv.JSONToYOLO(ctx, labelFileOrDirPath, labelOutFileOrDirPath)
	case convertTo == TFRecord:
		results, err = writeTFRecord(ctx, conv, names)
	default:
		err = fmt.Errorf("unsupported conversion")
	}
	if err != nil {
		log.Fatal("Conversion failed: ", err)
	}

	failed := results.Failed()
	for _, r := range failed {
		log.WithField("file", r.Source).Error(r.Err)
	}
	log.WithFields(logrus.Fields{
		"files":  len(results),
		"failed": len(failed),
		"boxes":  results.Boxes(),
	}).Infof("Wrote labels to %s", labelOutFileOrDirPath)

	if len(failed) > 0 {
		os.Exit(1)
	}
}

// vocInputs returns the Pascal VOC files named by the -labels argument.
func vocInputs() ([]string, error) {
	info, err := os.Stat(labelFileOrDirPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{labelFileOrDirPath}, nil
	}
	return annotconv.FilesByExt(labelFileOrDirPath, ".xml")
}

func convertVOC(ctx context.Context, conv *annotconv.Converter) (annotconv.Results, error) {
	inputs, err := vocInputs()
	if err != nil {
		return nil, err
	}
	return conv.BatchXMLToYOLO(ctx, inputs, labelOutFileOrDirPath), nil
}

func writeTFRecord(ctx context.Context, conv *annotconv.Converter, names map[int]string) (
	annotconv.Results, error) {

	var images []annotconv.AnnotatedImage
	var results annotconv.Results
	switch convertFrom {
	case VOC:
		inputs, err := vocInputs()
		if err != nil {
			return nil, err
		}
		images, results = conv.ReadVOCImages(ctx, inputs)
	case COCO:
		var err error
		if images, results, err = conv.ReadCOCOImages(ctx, labelFileOrDirPath); err != nil {
			return nil, err
		}
		if names, err = cocoClassNames(labelFileOrDirPath, conv.Categories); err != nil {
			return nil, err
		}
	}

	err := annotconv.WriteTFRecord(labelOutFileOrDirPath, tfRecordLabelMapFilePath, imageDirPath,
		images, names, numShardFiles)
	return results, err
}

// cocoClassNames names the YOLO classes after the COCO categories mapped to them.
func cocoClassNames(jsonPath string, categories annotconv.CategoryMap) (map[int]string, error) {
	ds, err := annotconv.ReadCOCO(jsonPath)
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(categories))
	for _, c := range ds.Categories {
		if idx, ok := categories[c.ID]; ok {
			names[idx] = c.Name
		}
	}
	return names, nil
}

// Draws Pascal VOC, YOLO or COCO annotations onto their image and saves the result.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/sensorable/annotconv"
	"github.com/sensorable/annotconv/internal/logging"
	"github.com/sensorable/annotconv/render"
)

func main() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	format := flag.String("format", "", "The annotation `format` {voc, yolo, coco}")
	imagePath := flag.String("image", "", "The image `path`")
	labelPath := flag.String("labels", "", "The annotation file `path`")
	outPath := flag.String("out", "", "The output image `path` (jpg or png)")
	labelMapPath := flag.String("label-map", "",
		"Optional YAML or JSON `file` mapping names to YOLO class indices, to name YOLO classes")
	thickness := flag.Int("thickness", 5, "The box outline width in `pixels`")
	jpegQuality := flag.Int("jpeg-quality", 90, "The quality to use when encoding JPEGs [1, 100]")
	flag.Parse()

	log, err := logging.New(logging.Options{})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *imagePath == "" || *labelPath == "" || *outPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	r := render.New()
	r.Thickness = *thickness
	if *labelMapPath != "" {
		labels, err := annotconv.LoadLabelMap(*labelMapPath)
		if err != nil {
			log.Fatal("Failed to load the label map: ", err)
		}
		r.Names = labels.Names()
	}

	var img image.Image
	switch *format {
	case "voc":
		img, err = r.VOC(*imagePath, *labelPath)
	case "yolo":
		img, err = r.YOLO(*imagePath, *labelPath)
	case "coco":
		img, err = r.COCO(*imagePath, *labelPath)
	default:
		err = fmt.Errorf("unsupported format %q", *format)
	}
	if err != nil {
		log.Fatal("Rendering failed: ", err)
	}

	if err := render.Save(*outPath, img, *jpegQuality); err != nil {
		log.Fatal("Failed to save the image: ", err)
	}
	log.WithField("file", *outPath).Info("Saved the annotated image")
}

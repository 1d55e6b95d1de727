// Uploads a directory of images and their YOLO annotation files to S3.
//
// The bucket, region and credentials are read from the environment, optionally from a .env file:
// ANNOTCONV_BUCKET, AWS_REGION, AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/sensorable/annotconv/internal/logging"
	"github.com/sensorable/annotconv/upload"
)

func main() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	imageDir := flag.String("images", "", "The image directory `path`")
	labelDir := flag.String("labels", "", "The YOLO annotation directory `path`")
	batch := flag.String("batch", "", "The batch `name` grouping this upload")
	prefix := flag.String("prefix", "", "An optional object key `prefix`")
	workers := flag.Int("workers", upload.DefaultWorkers, "The number of concurrent uploads")
	envFile := flag.String("env", ".env", "An optional environment `file`")
	logFile := flag.String("log-file", "", "An optional log `file`")
	flag.Parse()

	base, err := logging.New(logging.Options{File: *logFile})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := base.WithField("run_id", uuid.NewString())

	if err := godotenv.Load(*envFile); err != nil {
		log.WithField("file", *envFile).Warn("No environment file loaded, using the process environment")
	}
	if *imageDir == "" || *labelDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := upload.Config{
		Batch:   *batch,
		Bucket:  os.Getenv("ANNOTCONV_BUCKET"),
		Prefix:  *prefix,
		Workers: *workers,
	}
	u, err := upload.NewS3(cfg, os.Getenv("AWS_REGION"), log)
	if err != nil {
		log.Fatal("Failed to create the uploader: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := u.UploadDir(ctx, *imageDir, *labelDir)
	if err != nil {
		log.Fatal("Upload failed: ", err)
	}

	var failed, imageOnly int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.AnnotationKey == "":
			imageOnly++
		}
	}
	log.WithFields(logrus.Fields{
		"images":     len(results),
		"image_only": imageOnly,
		"failed":     failed,
	}).Info("Upload finished")

	if failed > 0 {
		os.Exit(1)
	}
}

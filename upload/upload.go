// Package upload pushes images and their YOLO annotation files to S3.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/sensorable/annotconv"
)

// DefaultWorkers is the number of concurrent uploads when Config.Workers is zero.
const DefaultWorkers = 8

// Config describes the upload destination.
type Config struct {
	Batch   string `validate:"required,excludesall=/"` // Groups one dataset upload.
	Bucket  string `validate:"required"`
	Prefix  string // Optional key prefix.
	Workers int    `validate:"gte=0,lte=64"`
}

// Result is the outcome of uploading one image.
type Result struct {
	AnnotationKey string // Empty if the image was uploaded without annotation.
	Err           error
	Image         string // The local image path.
	ImageKey      string
}

// Uploader uploads image and annotation pairs.
type Uploader struct {
	api    s3manageriface.UploaderAPI
	cfg    Config
	logger logrus.FieldLogger
}

// New validates cfg and returns an Uploader using api.
func New(cfg Config, api s3manageriface.UploaderAPI, logger logrus.FieldLogger) (*Uploader, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid upload config: %w", err)
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Uploader{api: api, cfg: cfg, logger: logger}, nil
}

// NewS3 returns an Uploader backed by an S3 session for region. Credentials are taken from the
// default AWS provider chain (environment, shared config, instance role).
func NewS3(cfg Config, region string, logger logrus.FieldLogger) (*Uploader, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	return New(cfg, s3manager.NewUploader(sess), logger)
}

// UploadDir uploads every file in imageDir together with the YOLO file of the same base name from
// labelDir. Images without an annotation file are uploaded alone. A failed image does not stop the
// other uploads; the results are returned in the order of the image files.
func (u *Uploader) UploadDir(ctx context.Context, imageDir, labelDir string) ([]Result, error) {
	images, err := annotconv.FilesByExt(imageDir, "")
	if err != nil {
		return nil, err
	}
	u.logger.WithFields(logrus.Fields{"dir": imageDir, "batch": u.cfg.Batch}).
		Infof("Uploading %d images", len(images))

	results := make([]Result, len(images))
	workQueue := make(chan int, 2*u.cfg.Workers)
	var wg sync.WaitGroup

	wg.Add(u.cfg.Workers)
	for i := 0; i < u.cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range workQueue {
				results[idx] = u.uploadImage(ctx, images[idx], labelDir)
			}
		}()
	}

	for i := range images {
		workQueue <- i
	}
	close(workQueue)
	wg.Wait()

	return results, nil
}

// uploadImage uploads imagePath and, if it exists, its annotation file.
func (u *Uploader) uploadImage(ctx context.Context, imagePath, labelDir string) Result {
	name := filepath.Base(imagePath)
	r := Result{Image: imagePath, ImageKey: u.key("images", name)}
	if err := ctx.Err(); err != nil {
		r.Err = err
		return r
	}

	if r.Err = u.put(ctx, imagePath, r.ImageKey); r.Err != nil {
		u.logger.WithFields(logrus.Fields{"image": imagePath, "error": r.Err}).Error("Upload failed")
		return r
	}

	labelName := strings.TrimSuffix(name, filepath.Ext(name)) + ".txt"
	labelPath := filepath.Join(labelDir, labelName)
	if _, err := os.Stat(labelPath); errors.Is(err, os.ErrNotExist) {
		u.logger.WithField("image", imagePath).Warn("No annotation file, uploaded the image alone")
		return r
	}

	key := u.key("labels", labelName)
	if r.Err = u.put(ctx, labelPath, key); r.Err != nil {
		u.logger.WithFields(logrus.Fields{"annotation": labelPath, "error": r.Err}).
			Error("Annotation upload failed")
		return r
	}
	r.AnnotationKey = key

	return r
}

func (u *Uploader) put(ctx context.Context, filePath, key string) (err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	_, err = u.api.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %q to s3://%s/%s: %w", filePath, u.cfg.Bucket, key, err)
	}
	return nil
}

func (u *Uploader) key(kind, name string) string {
	return path.Join(u.cfg.Prefix, u.cfg.Batch, kind, name)
}

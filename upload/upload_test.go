package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUploader records the uploaded objects in memory.
type fakeUploader struct {
	s3manageriface.UploaderAPI

	fail    map[string]error // Keys whose upload fails.
	mu      sync.Mutex
	objects map[string]string
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{fail: map[string]error{}, objects: map[string]string{}}
}

func (f *fakeUploader) UploadWithContext(ctx aws.Context, in *s3manager.UploadInput,
	_ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {

	key := aws.StringValue(in.Key)
	if err := f.fail[key]; err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.StringValue(in.Bucket)+"/"+key] = string(data)
	return &s3manager.UploadOutput{Location: key}, nil
}

func (f *fakeUploader) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func setupDirs(t *testing.T) (imageDir, labelDir string) {
	t.Helper()
	root := t.TempDir()
	imageDir = filepath.Join(root, "images")
	labelDir = filepath.Join(root, "labels")
	require.NoError(t, os.Mkdir(imageDir, 0755))
	require.NoError(t, os.Mkdir(labelDir, 0755))

	writeFile(t, imageDir, "a.jpg", "image a")
	writeFile(t, imageDir, "b.png", "image b")
	writeFile(t, imageDir, "c.jpg", "image c")
	writeFile(t, labelDir, "a.txt", "0 0.5 0.5 0.5 0.5")
	writeFile(t, labelDir, "c.txt", "1 0.5 0.5 1 1")
	return imageDir, labelDir
}

func TestUploadDir(t *testing.T) {
	imageDir, labelDir := setupDirs(t)
	api := newFakeUploader()
	logger, hook := test.NewNullLogger()

	u, err := New(Config{Batch: "2024-06", Bucket: "weeds", Prefix: "datasets", Workers: 2}, api, logger)
	require.NoError(t, err)

	results, err := u.UploadDir(context.Background(), imageDir, labelDir)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, Result{
		AnnotationKey: "datasets/2024-06/labels/a.txt",
		Image:         filepath.Join(imageDir, "a.jpg"),
		ImageKey:      "datasets/2024-06/images/a.jpg",
	}, results[0])
	assert.Equal(t, "datasets/2024-06/images/b.png", results[1].ImageKey)
	assert.Empty(t, results[1].AnnotationKey)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, "datasets/2024-06/labels/c.txt", results[2].AnnotationKey)

	assert.Equal(t, []string{
		"weeds/datasets/2024-06/images/a.jpg",
		"weeds/datasets/2024-06/images/b.png",
		"weeds/datasets/2024-06/images/c.jpg",
		"weeds/datasets/2024-06/labels/a.txt",
		"weeds/datasets/2024-06/labels/c.txt",
	}, api.keys())
	assert.Equal(t, "1 0.5 0.5 1 1", api.objects["weeds/datasets/2024-06/labels/c.txt"])

	var warnings []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings = append(warnings, e)
		}
	}
	require.Len(t, warnings, 1)
	assert.Equal(t, filepath.Join(imageDir, "b.png"), warnings[0].Data["image"])
}

func TestUploadDirFailure(t *testing.T) {
	imageDir, labelDir := setupDirs(t)
	api := newFakeUploader()
	errDenied := errors.New("access denied")
	api.fail["b1/images/a.jpg"] = errDenied
	api.fail["b1/labels/c.txt"] = errDenied
	logger, _ := test.NewNullLogger()

	u, err := New(Config{Batch: "b1", Bucket: "weeds"}, api, logger)
	require.NoError(t, err)

	results, err := u.UploadDir(context.Background(), imageDir, labelDir)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// The annotation is not uploaded when its image failed.
	assert.ErrorIs(t, results[0].Err, errDenied)
	assert.Empty(t, results[0].AnnotationKey)
	assert.NoError(t, results[1].Err)
	assert.ErrorIs(t, results[2].Err, errDenied)
	assert.Empty(t, results[2].AnnotationKey)

	assert.Equal(t, []string{"weeds/b1/images/b.png", "weeds/b1/images/c.jpg"}, api.keys())
}

func TestUploadDirCanceled(t *testing.T) {
	imageDir, labelDir := setupDirs(t)
	api := newFakeUploader()
	logger, _ := test.NewNullLogger()
	u, err := New(Config{Batch: "b1", Bucket: "weeds", Workers: 1}, api, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := u.UploadDir(ctx, imageDir, labelDir)
	require.NoError(t, err)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Empty(t, api.keys())
}

func TestUploadDirMissingDir(t *testing.T) {
	u, err := New(Config{Batch: "b1", Bucket: "weeds"}, newFakeUploader(), nil)
	require.NoError(t, err)

	_, err = u.UploadDir(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir())
	assert.Error(t, err)
}

func TestNewInvalidConfig(t *testing.T) {
	tests := map[string]Config{
		"missing batch":  {Bucket: "weeds"},
		"missing bucket": {Batch: "b1"},
		"slash in batch": {Batch: "a/b", Bucket: "weeds"},
		"too many":       {Batch: "b1", Bucket: "weeds", Workers: 65},
		"negative":       {Batch: "b1", Bucket: "weeds", Workers: -1},
	}

	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg, newFakeUploader(), nil)
			assert.ErrorContains(t, err, "invalid upload config")
		})
	}
}

func TestNewDefaults(t *testing.T) {
	u, err := New(Config{Batch: "b1", Bucket: "weeds"}, newFakeUploader(), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkers, u.cfg.Workers)
	assert.Equal(t, "b1/images/x.jpg", u.key("images", "x.jpg"))
}

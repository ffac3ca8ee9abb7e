package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/detection"
	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/results"
)

type fakeUploader struct {
	uploaded []string
	failOn   string
}

func (f *fakeUploader) ObjectKey(fileName string) string {
	return "rekognition-input/" + filepath.Base(fileName)
}

func (f *fakeUploader) UploadImage(ctx context.Context, localPath string) (string, error) {
	if filepath.Base(localPath) == f.failOn {
		return "", errors.New("upload failed")
	}
	key := f.ObjectKey(localPath)
	f.uploaded = append(f.uploaded, key)
	return key, nil
}

type fakeDetector struct {
	labels []detection.Label
	failOn string
	calls  []string
}

func (f *fakeDetector) DetectLabels(ctx context.Context, key string) ([]detection.Label, error) {
	f.calls = append(f.calls, key)
	if f.failOn != "" && strings.HasSuffix(key, f.failOn) {
		return nil, errors.New("detection failed")
	}
	return f.labels, nil
}

type fakeRecorder struct {
	records map[string]results.ResultRecord
	failOn  string
}

func (f *fakeRecorder) PutResult(ctx context.Context, record results.ResultRecord) error {
	if f.failOn != "" && strings.HasSuffix(record.Filename, f.failOn) {
		return errors.New("write failed")
	}
	f.records[record.Filename] = record
	return nil
}

func newTestPipeline(uploader *fakeUploader, detector *fakeDetector, recorder *fakeRecorder, out *bytes.Buffer) *Pipeline {
	return &Pipeline{
		Uploader: uploader,
		Detector: detector,
		Recorder: recorder,
		Bucket:   "test-bucket",
		Branch:   "unknown",
		Out:      out,
	}
}

func TestPipeline_Run(t *testing.T) {
	uploader := &fakeUploader{}
	detector := &fakeDetector{labels: []detection.Label{{Name: "Cat", Confidence: 95.2}}}
	recorder := &fakeRecorder{records: make(map[string]results.ResultRecord)}
	out := &bytes.Buffer{}
	p := newTestPipeline(uploader, detector, recorder, out)

	catJpg := filepath.Join("images", "cat.jpg")
	report := p.Run(context.Background(), []string{catJpg})

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "rekognition-input/cat.jpg", report.Results[0].Key)
	assert.NoError(t, report.Results[0].Err)

	record, ok := recorder.records["rekognition-input/cat.jpg"]
	require.True(t, ok)
	assert.Equal(t, "rekognition-input/cat.jpg", record.Filename)
	assert.Equal(t, []detection.Label{{Name: "Cat", Confidence: 95.2}}, record.Labels)
	assert.Equal(t, "unknown", record.Branch)

	assert.True(t, strings.HasSuffix(record.Timestamp, "Z"))
	_, err := time.Parse(time.RFC3339, record.Timestamp)
	assert.NoError(t, err)

	console := out.String()
	assert.Contains(t, console, fmt.Sprintf("⬆️ Uploading %v to s3://test-bucket/rekognition-input/cat.jpg", catJpg))
	assert.Contains(t, console, "👁️ Calling Rekognition DetectLabels for s3://test-bucket/rekognition-input/cat.jpg")
	assert.Contains(t, console, "🧾 Writing results to DynamoDB for rekognition-input/cat.jpg")
	assert.Contains(t, console, "✅ Success!")
	assert.Contains(t, console, `"filename": "rekognition-input/cat.jpg"`)
	assert.Contains(t, console, `"Name": "Cat"`)
}

func TestPipeline_RunContinuesAfterFailure(t *testing.T) {
	uploader := &fakeUploader{failOn: "a.jpg"}
	detector := &fakeDetector{labels: []detection.Label{{Name: "Dog", Confidence: 88.5}}}
	recorder := &fakeRecorder{records: make(map[string]results.ResultRecord)}
	out := &bytes.Buffer{}
	p := newTestPipeline(uploader, detector, recorder, out)

	files := []string{
		filepath.Join("images", "a.jpg"),
		filepath.Join("images", "b.jpg"),
	}
	report := p.Run(context.Background(), files)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 2)
	assert.Error(t, report.Results[0].Err)
	assert.NoError(t, report.Results[1].Err)

	// the failed file leaves no record behind
	_, ok := recorder.records["rekognition-input/a.jpg"]
	assert.False(t, ok)
	_, ok = recorder.records["rekognition-input/b.jpg"]
	assert.True(t, ok)

	// failing the upload never reaches the detector for that file
	assert.Equal(t, []string{"rekognition-input/b.jpg"}, detector.calls)

	assert.Contains(t, out.String(), "❌ Failed processing a.jpg: upload failed")
}

func TestPipeline_RunDetectFailureWritesNoPartialRecord(t *testing.T) {
	uploader := &fakeUploader{}
	detector := &fakeDetector{failOn: "cat.jpg"}
	recorder := &fakeRecorder{records: make(map[string]results.ResultRecord)}
	out := &bytes.Buffer{}
	p := newTestPipeline(uploader, detector, recorder, out)

	report := p.Run(context.Background(), []string{filepath.Join("images", "cat.jpg")})

	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, recorder.records)
	assert.Contains(t, out.String(), "❌ Failed processing cat.jpg: detection failed")
}

func TestPipeline_RunRecordFailure(t *testing.T) {
	uploader := &fakeUploader{}
	detector := &fakeDetector{labels: []detection.Label{{Name: "Cat", Confidence: 95.2}}}
	recorder := &fakeRecorder{records: make(map[string]results.ResultRecord), failOn: "cat.jpg"}
	out := &bytes.Buffer{}
	p := newTestPipeline(uploader, detector, recorder, out)

	report := p.Run(context.Background(), []string{filepath.Join("images", "cat.jpg")})

	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, recorder.records)
	assert.Contains(t, out.String(), "❌ Failed processing cat.jpg: write failed")
}

func TestPipeline_RunEmpty(t *testing.T) {
	uploader := &fakeUploader{}
	detector := &fakeDetector{}
	recorder := &fakeRecorder{records: make(map[string]results.ResultRecord)}
	out := &bytes.Buffer{}
	p := newTestPipeline(uploader, detector, recorder, out)

	report := p.Run(context.Background(), nil)

	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, report.Results)
	assert.Contains(t, out.String(), "ℹ️ No images found in 'images/'. Add a .jpg/.png file and rerun.")
}

func TestPipeline_RunSharesOneTimestamp(t *testing.T) {
	uploader := &fakeUploader{}
	detector := &fakeDetector{labels: []detection.Label{{Name: "Tree", Confidence: 91.5}}}
	recorder := &fakeRecorder{records: make(map[string]results.ResultRecord)}
	out := &bytes.Buffer{}
	p := newTestPipeline(uploader, detector, recorder, out)

	files := []string{
		filepath.Join("images", "a.jpg"),
		filepath.Join("images", "b.jpg"),
	}
	report := p.Run(context.Background(), files)
	require.Equal(t, 2, report.Succeeded)

	a := recorder.records["rekognition-input/a.jpg"]
	b := recorder.records["rekognition-input/b.jpg"]
	assert.Equal(t, a.Timestamp, b.Timestamp)
}

func TestPipeline_RerunOverwritesRecord(t *testing.T) {
	uploader := &fakeUploader{}
	detector := &fakeDetector{labels: []detection.Label{{Name: "Cat", Confidence: 95.2}}}
	recorder := &fakeRecorder{records: make(map[string]results.ResultRecord)}
	out := &bytes.Buffer{}
	p := newTestPipeline(uploader, detector, recorder, out)

	file := filepath.Join("images", "cat.jpg")
	p.Run(context.Background(), []string{file})
	p.Run(context.Background(), []string{file})

	assert.Equal(t, 1, len(recorder.records))
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/config"
	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/detection"
	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/results"
)

type ObjectUploader interface {
	ObjectKey(fileName string) string
	UploadImage(ctx context.Context, localPath string) (string, error)
}

type LabelDetector interface {
	DetectLabels(ctx context.Context, key string) ([]detection.Label, error)
}

type ResultRecorder interface {
	PutResult(ctx context.Context, record results.ResultRecord) error
}

// Pipeline drives one analysis run. Progress lines for CI logs go to Out,
// diagnostics go to slog.
type Pipeline struct {
	Uploader ObjectUploader
	Detector LabelDetector
	Recorder ResultRecorder
	Bucket   string
	Branch   string
	Out      io.Writer
}

// Run processes the files strictly in order, one stage at a time. A failing
// stage abandons the remaining stages for that file and moves on to the next
// one; no partial record is written. All records of a run share a single
// timestamp.
func (p *Pipeline) Run(ctx context.Context, files []string) RunReport {
	report := RunReport{}

	if len(files) == 0 {
		fmt.Fprintf(p.Out, "ℹ️ No images found in '%v/'. Add a .jpg/.png file and rerun.\n", config.ImagesDir)
		return report
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)

	for _, file := range files {
		key, err := p.processFile(ctx, file, timestamp)
		report.Results = append(report.Results, FileResult{File: file, Key: key, Err: err})
		if err != nil {
			report.Failed++
			slog.Error("Image processing failed", "file", file, "error", err)
			fmt.Fprintf(p.Out, "❌ Failed processing %v: %v\n", filepath.Base(file), err)
			continue
		}
		report.Succeeded++
	}

	slog.Info("Analysis run finished",
		"files", len(files),
		"succeeded", report.Succeeded,
		"failed", report.Failed)
	return report
}

func (p *Pipeline) processFile(ctx context.Context, file string, timestamp string) (string, error) {
	key := p.Uploader.ObjectKey(file)

	fmt.Fprintf(p.Out, "⬆️ Uploading %v to s3://%v/%v\n", file, p.Bucket, key)
	if _, err := p.Uploader.UploadImage(ctx, file); err != nil {
		return key, err
	}

	fmt.Fprintf(p.Out, "👁️ Calling Rekognition DetectLabels for s3://%v/%v\n", p.Bucket, key)
	labels, err := p.Detector.DetectLabels(ctx, key)
	if err != nil {
		return key, err
	}

	record := results.ResultRecord{
		Filename:  key,
		Labels:    labels,
		Timestamp: timestamp,
		Branch:    p.Branch,
	}

	fmt.Fprintf(p.Out, "🧾 Writing results to DynamoDB for %v\n", key)
	if err := p.Recorder.PutResult(ctx, record); err != nil {
		return key, err
	}

	fmt.Fprintln(p.Out, "✅ Success!")
	if summary, err := json.MarshalIndent(record, "", "  "); err == nil {
		fmt.Fprintln(p.Out, string(summary))
	}
	return key, nil
}

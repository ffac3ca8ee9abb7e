package detection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

const (
	MaxLabels     = 10
	MinConfidence = 70
)

type RekognitionClient interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

// Label is the slice of a detection result that gets persisted. Field names
// keep the service's response vocabulary so stored records read the same as
// the raw API output.
type Label struct {
	Name       string  `json:"Name" dynamodbav:"Name"`
	Confidence float64 `json:"Confidence" dynamodbav:"Confidence"`
}

type LabelDetectorAWS struct {
	Client RekognitionClient
	Bucket string
}

func NewLabelDetectorAWS(client RekognitionClient, bucketName string) (*LabelDetectorAWS, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("S3_BUCKET is not defined")
	}
	return &LabelDetectorAWS{
		Client: client,
		Bucket: bucketName,
	}, nil
}

// DetectLabels runs label detection on an already uploaded object and returns
// the labels in the order the service reported them. Entries missing a name
// or confidence come back as "Unknown" / 0 rather than being dropped.
func (lda *LabelDetectorAWS) DetectLabels(ctx context.Context, key string) ([]Label, error) {
	input := &rekognition.DetectLabelsInput{
		Image: &types.Image{
			S3Object: &types.S3Object{
				Bucket: aws.String(lda.Bucket),
				Name:   aws.String(key),
			},
		},
		MaxLabels:     aws.Int32(MaxLabels),
		MinConfidence: aws.Float32(MinConfidence),
	}

	output, err := lda.Client.DetectLabels(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("unable to detect labels for %v: %v", key, err)
	}

	labels := make([]Label, 0, len(output.Labels))
	for _, l := range output.Labels {
		label := Label{Name: "Unknown"}
		if l.Name != nil {
			label.Name = *l.Name
		}
		if l.Confidence != nil {
			label.Confidence = float64(*l.Confidence)
		}
		labels = append(labels, label)
	}
	slog.Debug("Labels detected", "bucket", lda.Bucket, "key", key, "count", len(labels))
	return labels, nil
}

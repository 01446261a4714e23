package extract

import (
	"context"
	"fmt"
	"io"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// OCR 图片文字识别
type OCR interface {
	DetectText(ctx context.Context, img []byte) (string, error)
}

// VisionOCR Google Cloud Vision DOCUMENT_TEXT_DETECTION
type VisionOCR struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionOCR 创建 Vision 客户端；credentialsFile 为空时使用默认凭据
func NewVisionOCR(ctx context.Context, credentialsFile string) (*VisionOCR, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionOCR{client: client}, nil
}

func (v *VisionOCR) Close() error {
	return v.client.Close()
}

func (v *VisionOCR) DetectText(ctx context.Context, img []byte) (string, error) {
	if len(img) == 0 {
		return "", nil
	}
	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return "", nil
	}
	r0 := resp.GetResponses()[0]
	if msg := r0.GetError().GetMessage(); msg != "" {
		return "", fmt.Errorf("vision annotate error: %s", msg)
	}
	return r0.GetFullTextAnnotation().GetText(), nil
}

type imageExtractor struct {
	ocr OCR
}

func (e *imageExtractor) Extract(ctx context.Context, r io.Reader) (string, error) {
	img, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	text, err := e.ocr.DetectText(ctx, img)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

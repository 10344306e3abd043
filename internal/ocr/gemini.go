package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultGeminiModel = "gemini-2.5-pro"
	geminiTimeout      = 30 * time.Second
)

var errEmptyCandidate = errors.New("gemini returned no receipt text")

// Gemini reads receipt screenshots with a Gemini vision model
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a Gemini provider. An empty model name selects the default model.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// Field values are copied off the screen, not composed
	model.SetTemperature(0)

	return &Gemini{client: client, model: model, timeout: geminiTimeout}, nil
}

// Extract converts the upload to PNG, asks the model for the receipt fields and
// attaches the EXIF metadata of the original bytes
func (g *Gemini) Extract(imageData []byte, contentType string) (*Envelope, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	metadata := ReadMetadata(imageData)

	pngData, format, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, err
	}

	resp, err := g.model.GenerateContent(ctx,
		genai.ImageData(strings.TrimPrefix(format, "image/"), pngData),
		genai.Text(receiptScanPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("asking gemini for receipt fields: %w", err)
	}

	text, err := candidateText(resp)
	if err != nil {
		return nil, err
	}

	envelope, err := parseScanResult(text)
	if err != nil {
		return nil, fmt.Errorf("parsing gemini answer: %w", err)
	}
	attachMetadata(envelope, metadata)
	return envelope, nil
}

// candidateText joins the text parts of the first candidate
func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errEmptyCandidate
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("gemini blocked the image: %w", errEmptyCandidate)
	}
	if candidate.Content == nil {
		return "", errEmptyCandidate
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", errEmptyCandidate
	}
	return text.String(), nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

// attachMetadata adds EXIF metadata and, when available, an EXIF master timestamp
func attachMetadata(envelope *Envelope, metadata map[string]any) {
	if envelope == nil || envelope.ReportsFailure() || metadata == nil {
		return
	}
	envelope.Metadata = metadata
	if ts, ok := metadata["DateTimeOriginal"].(string); ok && envelope.MasterTimestamp == nil {
		envelope.MasterTimestamp = &MasterTimestamp{Value: ts, Source: "exif"}
	}
}

package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// envelopeSchema describes the loosest envelope the cloud function may answer with
const envelopeSchema = `{
  "type": "object",
  "properties": {
    "success": {"type": "boolean"},
    "error": {"type": "string"},
    "receipt": {
      "type": "object",
      "properties": {
        "data": {"type": "object"},
        "confidence": {"type": "object", "additionalProperties": {"type": "number"}}
      }
    },
    "masterTimestamp": {
      "type": "object",
      "properties": {
        "value": {"type": "string"},
        "source": {"type": "string"}
      },
      "required": ["value"]
    },
    "metadata": {"type": ["object", "null"]},
    "fields": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "value": {"type": "string"}
        },
        "required": ["name"]
      }
    },
    "confidence": {"type": "object", "additionalProperties": {"type": "number"}}
  },
  "anyOf": [
    {"required": ["success"]},
    {"required": ["fields"]}
  ]
}`

var compiledEnvelopeSchema = jsonschema.MustCompileString("envelope.json", envelopeSchema)

// CloudFunction implements the Provider interface by posting the image to an
// HTTP OCR function that answers with an envelope
type CloudFunction struct {
	url    string
	client *http.Client
}

// NewCloudFunction creates a new CloudFunction Provider instance
func NewCloudFunction(url string) (*CloudFunction, error) {
	if url == "" {
		return nil, fmt.Errorf("ocr function url is required")
	}
	return &CloudFunction{
		url: url,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type cloudFunctionRequest struct {
	Base64Image string `json:"base64Image"`
}

// Extract posts the base64 image and decodes the returned envelope
func (c *CloudFunction) Extract(imageData []byte, contentType string) (*Envelope, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	metadata := ReadMetadata(imageData)

	finalImageData, _, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(cloudFunctionRequest{
		Base64Image: base64.StdEncoding.EncodeToString(finalImageData),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ocr function: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		slog.Warn("OCR function rejected image", "status", resp.StatusCode, "body", truncate(string(body), 200))
		return Failed(InvalidReceiptMessage), nil
	}

	envelope, err := DecodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	// The function does not see EXIF once the image is converted, so fill it in locally
	if envelope.Metadata == nil {
		attachMetadata(envelope, metadata)
	}

	return envelope, nil
}

// Close is a no-op for the HTTP client
func (c *CloudFunction) Close() error {
	return nil
}

// DecodeEnvelope validates raw envelope JSON and decodes it
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	if err := compiledEnvelopeSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("envelope does not match schema: %w", err)
	}

	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return &envelope, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

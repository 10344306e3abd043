package ocr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// receiptScanPrompt is the prompt vision models get for Instapay receipt screenshots
const receiptScanPrompt = `You are analyzing a screenshot of an Instapay (Egypt) payment confirmation screen. The text may be in English or Arabic. Carefully read all text in the image and extract the following information:

1. **status**: The transaction status line exactly as printed, e.g. "Transaction Successful" or "تمت العملية بنجاح".
2. **timestamp**: The transaction date and time exactly as printed, e.g. "16 May 2025 10:56 PM".
3. **reference**: The transaction reference number, digits only.
4. **amount**: The transferred amount as a plain number without currency, e.g. "200.00".
5. **currency**: The currency code, e.g. "EGP".
6. **senderName**, **receiverName**: The sender and receiver names or Instapay addresses.

For every field you return, also give a confidence score between 0.0 and 1.0.

Return ONLY valid JSON in this exact format:
{
  "isReceipt": true,
  "data": {
    "status": "...",
    "timestamp": "...",
    "reference": "...",
    "amount": "...",
    "currency": "...",
    "senderName": "...",
    "receiverName": "..."
  },
  "confidence": {
    "status": 0.0,
    "timestamp": 0.0,
    "reference": 0.0,
    "amount": 0.0
  }
}

Important:
- Set "isReceipt" to false if the image is not a payment receipt
- Copy status and timestamp text verbatim, do not translate or reformat them
- If you cannot find a field, omit it from "data" and "confidence"
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// scanResult is what the vision model answers with
type scanResult struct {
	IsReceipt  *bool              `json:"isReceipt"`
	Data       map[string]any     `json:"data"`
	Confidence map[string]float64 `json:"confidence"`
}

// extractJSONObject trims markdown fences and anything outside the outermost braces
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

// parseScanResult turns a model response into a structured envelope
func parseScanResult(text string) (*Envelope, error) {
	text, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var result scanResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	if result.IsReceipt != nil && !*result.IsReceipt {
		return Failed(InvalidReceiptMessage), nil
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("no receipt fields in response")
	}

	// Drop empty values so missing fields stay missing
	for k, v := range result.Data {
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if s == "" {
				delete(result.Data, k)
				continue
			}
			result.Data[k] = s
		}
		if v == nil {
			delete(result.Data, k)
		}
	}

	return Succeeded(result.Data, result.Confidence), nil
}

package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// heicBrands are the ftyp brands iPhones write for screenshots and photos
var heicBrands = map[string]bool{
	"heic": true,
	"heix": true,
	"heif": true,
	"mif1": true,
	"msf1": true,
}

// renderPDFReceipt renders the first page of a PDF receipt (bank apps export single-page PDFs)
func renderPDFReceipt(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// decodeReceiptImage decodes JPEG, PNG, GIF and HEIC screenshots
func decodeReceiptImage(imageData []byte, mimeType string) (image.Image, error) {
	if isHEIC(imageData, mimeType) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported receipt format, upload a JPEG, PNG, HEIC or PDF: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEIC checks the ftyp box brand and falls back to the declared MIME type
func isHEIC(data []byte, mimeType string) bool {
	if len(data) >= 12 && string(data[4:8]) == "ftyp" && heicBrands[string(data[8:12])] {
		return true
	}
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// prepareImageData normalizes whatever was uploaded into PNG bytes for the OCR backends.
// Returns the PNG data, its MIME type, and whether a conversion happened.
func prepareImageData(imageData []byte, contentType string) ([]byte, string, bool, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	if mimeType == "image/png" && !isHEIC(imageData, mimeType) {
		return imageData, "image/png", false, nil
	}

	var (
		img image.Image
		err error
	)
	if mimeType == "application/pdf" {
		img, err = renderPDFReceipt(imageData)
		if err != nil {
			return nil, "", false, fmt.Errorf("converting PDF to image: %w", err)
		}
	} else {
		img, err = decodeReceiptImage(imageData, mimeType)
		if err != nil {
			return nil, "", false, fmt.Errorf("converting image to PNG: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", false, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), "image/png", true, nil
}

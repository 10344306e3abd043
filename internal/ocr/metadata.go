package ocr

import (
	"bytes"
	"log/slog"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

const (
	// exifLayout is the on-disk EXIF timestamp format
	exifLayout = "2006:01:02 15:04:05"
	// metadataLayout is how EXIF timestamps are rendered into envelope metadata
	metadataLayout = "2006-01-02T15:04:05"
)

// exifFields maps EXIF tags to the metadata keys providers report
var exifFields = []struct {
	key string
	tag exif.FieldName
}{
	{"DateTimeOriginal", exif.DateTimeOriginal},
	{"CreateDate", exif.DateTimeDigitized},
	{"ModifyDate", exif.DateTime},
	{"Make", exif.Make},
	{"Model", exif.Model},
	{"Software", exif.Software},
	{"ImageWidth", exif.PixelXDimension},
	{"ImageHeight", exif.PixelYDimension},
}

var timeTags = map[string]bool{
	"DateTimeOriginal": true,
	"CreateDate":       true,
	"ModifyDate":       true,
}

// ReadMetadata pulls EXIF metadata out of the original image bytes.
// Screenshots rarely carry EXIF, so a missing block returns nil without an error.
func ReadMetadata(imageData []byte) map[string]any {
	x, err := exif.Decode(bytes.NewReader(imageData))
	if err != nil {
		slog.Debug("No EXIF metadata in image", "error", err)
		return nil
	}

	metadata := make(map[string]any)
	for _, field := range exifFields {
		tag, err := x.Get(field.tag)
		if err != nil {
			continue
		}
		if timeTags[field.key] {
			str, err := tag.StringVal()
			if err != nil {
				continue
			}
			t, err := parseExifTime(str)
			if err != nil {
				continue
			}
			metadata[field.key] = t
			continue
		}
		if str, err := tag.StringVal(); err == nil {
			metadata[field.key] = str
			continue
		}
		if n, err := tag.Int(0); err == nil {
			metadata[field.key] = n
		}
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

// HasTimestampMetadata reports whether trusted creation timestamps are present
func HasTimestampMetadata(metadata map[string]any) bool {
	if metadata == nil {
		return false
	}
	for _, key := range []string{"DateTimeOriginal", "CreateDate"} {
		if v, ok := metadata[key]; ok && v != nil && v != "" {
			return true
		}
	}
	return false
}

// parseExifTime converts an EXIF timestamp to the envelope metadata layout
func parseExifTime(raw string) (string, error) {
	raw = strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	t, err := time.ParseInLocation(exifLayout, raw, time.Local)
	if err != nil {
		return "", err
	}
	return t.Format(metadataLayout), nil
}

package attachment

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
)

// DecodePayload accepts raw base64 or a data URL
// ("data:image/png;base64,....") and returns the bytes and content type.
func DecodePayload(data string) ([]byte, string, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, "", fmt.Errorf("empty file data")
	}

	contentType := ""
	if strings.HasPrefix(data, "data:") {
		header, payload, ok := strings.Cut(data, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		meta := strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("data URL is not base64 encoded")
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		data = payload
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return nil, "", fmt.Errorf("decoding base64: %w", err)
		}
	}
	if len(raw) == 0 {
		return nil, "", fmt.Errorf("empty file data")
	}

	if contentType == "" {
		contentType = http.DetectContentType(raw)
	}
	return raw, contentType, nil
}

// Compression controls image re-encoding before storage.
type Compression struct {
	Enabled      bool
	MaxDimension int
	Quality      int
}

// compress shrinks JPEG, PNG and GIF images to fit within MaxDimension and
// re-encodes JPEGs at Quality. The original is returned when the result
// would not be smaller and no resize was needed.
func compress(data []byte, contentType string, c Compression) ([]byte, error) {
	if !c.Enabled {
		return data, nil
	}
	var format imaging.Format
	switch contentType {
	case "image/jpeg":
		format = imaging.JPEG
	case "image/png":
		format = imaging.PNG
	case "image/gif":
		format = imaging.GIF
	default:
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	resized := false
	if c.MaxDimension > 0 && exceeds(img.Bounds(), c.MaxDimension) {
		img = imaging.Fit(img, c.MaxDimension, c.MaxDimension, imaging.Lanczos)
		resized = true
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(c.Quality)); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	if !resized && buf.Len() >= len(data) {
		return data, nil
	}
	return buf.Bytes(), nil
}

func exceeds(b image.Rectangle, max int) bool {
	return b.Dx() > max || b.Dy() > max
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)

// sanitizeFilename keeps the base name with only safe characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	safe := unsafeChars.ReplaceAllString(name, "_")
	if safe == "" || safe == "." || safe == "_" {
		return "file"
	}
	return safe
}

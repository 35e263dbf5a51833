package imagegen

// atoms.go contains pure helpers with no package state.

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // decoder for OpenAI PNG payloads
	"strings"

	"github.com/sashabaranov/go-openai"

	"pixelbatch/core"
)

// JPEGQuality is used when a non-JPEG payload is re-encoded.
const JPEGQuality = 92

// IsAzureEndpoint reports whether endpoint is an Azure OpenAI resource URL.
//
// Example:
//
//	IsAzureEndpoint("https://myresource.openai.azure.com") // true
//	IsAzureEndpoint("https://api.openai.com/v1")           // false
func IsAzureEndpoint(endpoint string) bool {
	lower := strings.ToLower(endpoint)
	return strings.Contains(lower, "openai.azure.com") ||
		strings.Contains(lower, "cognitiveservices.azure.com")
}

// OpenAISizeFor maps an aspect ratio onto the closest size the OpenAI
// images API accepts: square, landscape or portrait.
func OpenAISizeFor(a core.AspectRatio) string {
	switch a {
	case core.AspectWide, core.AspectLandscape:
		return openai.CreateImageSize1792x1024
	case core.AspectTall, core.AspectPortrait:
		return openai.CreateImageSize1024x1792
	default:
		return openai.CreateImageSize1024x1024
	}
}

// EnsureJPEG returns b64 unchanged when it already holds a JPEG and
// otherwise decodes the image and re-encodes it as JPEG.
func EnsureJPEG(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decode image payload: %w", err)
	}
	if bytes.HasPrefix(raw, []byte{0xFF, 0xD8, 0xFF}) {
		return b64, nil
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func isInvalidCredential(err error) bool {
	return errors.Is(err, ErrInvalidCredential) || mentionsInvalidKey(err)
}

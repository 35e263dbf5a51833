package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"

	"pixelbatch/core"
)

func testPNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestOpenAIBackend_ReencodesPNG(t *testing.T) {
	pngB64 := testPNG(t)

	var gotReq openai.ImageRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"b64_json":"` + pngB64 + `"}]}`))
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL + "/v1"})
	payloads, err := backend.GenerateImages(context.Background(), "sk-test", Request{
		Prompt: "a lighthouse", AspectRatio: core.AspectTall, Count: 1,
	})
	if err != nil {
		t.Fatalf("GenerateImages() error = %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}

	raw, err := base64.StdEncoding.DecodeString(payloads[0])
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(raw)); err != nil {
		t.Errorf("payload is not a JPEG: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Size != openai.CreateImageSize1024x1792 || gotReq.Model != core.DefaultOpenAIModel {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.ResponseFormat != openai.CreateImageResponseFormatB64JSON {
		t.Errorf("ResponseFormat = %q", gotReq.ResponseFormat)
	}
}

func TestOpenAIBackend_InvalidKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL + "/v1"})
	_, err := backend.GenerateImages(context.Background(), "sk-bad", Request{
		Prompt: "x", AspectRatio: core.AspectSquare, Count: 1,
	})
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("error = %v, want ErrInvalidCredential", err)
	}
}

func TestOpenAIBackend_ServerErrorIsNotCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Your request was rejected by the safety system","type":"invalid_request_error","code":"content_policy_violation"}}`))
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL + "/v1"})
	_, err := backend.GenerateImages(context.Background(), "sk-ok", Request{
		Prompt: "x", AspectRatio: core.AspectSquare, Count: 1,
	})
	if err == nil || errors.Is(err, ErrInvalidCredential) {
		t.Errorf("error = %v, want a non-credential failure", err)
	}
}

func TestOpenAISizeFor(t *testing.T) {
	tests := map[core.AspectRatio]string{
		core.AspectSquare:    openai.CreateImageSize1024x1024,
		core.AspectWide:      openai.CreateImageSize1792x1024,
		core.AspectLandscape: openai.CreateImageSize1792x1024,
		core.AspectTall:      openai.CreateImageSize1024x1792,
		core.AspectPortrait:  openai.CreateImageSize1024x1792,
	}
	for in, want := range tests {
		if got := OpenAISizeFor(in); got != want {
			t.Errorf("OpenAISizeFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnsureJPEG(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	jpegB64 := base64.StdEncoding.EncodeToString(buf.Bytes())

	got, err := EnsureJPEG(jpegB64)
	if err != nil || got != jpegB64 {
		t.Errorf("EnsureJPEG(jpeg) = changed or error %v", err)
	}

	if _, err := EnsureJPEG("!!!"); err == nil {
		t.Error("EnsureJPEG(invalid base64) should fail")
	}
	if _, err := EnsureJPEG(base64.StdEncoding.EncodeToString([]byte("not an image"))); err == nil {
		t.Error("EnsureJPEG(garbage) should fail")
	}
}

func TestIsAzureEndpoint(t *testing.T) {
	tests := map[string]bool{
		"https://res.openai.azure.com":               true,
		"https://res.cognitiveservices.azure.com/":   true,
		"https://api.openai.com/v1":                  false,
		"":                                           false,
	}
	for in, want := range tests {
		if got := IsAzureEndpoint(in); got != want {
			t.Errorf("IsAzureEndpoint(%q) = %v, want %v", in, got, want)
		}
	}
}

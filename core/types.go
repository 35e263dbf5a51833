package core

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// AspectRatio is the requested image shape. Only the values listed in
// AspectRatios are accepted by the remote generation client.
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectWide      AspectRatio = "16:9"
	AspectTall      AspectRatio = "9:16"
	AspectLandscape AspectRatio = "4:3"
	AspectPortrait  AspectRatio = "3:4"
)

// AspectRatios lists the supported aspect ratios in display order.
var AspectRatios = []AspectRatio{AspectSquare, AspectWide, AspectTall, AspectLandscape, AspectPortrait}

// Valid reports whether a is one of the supported aspect ratios.
func (a AspectRatio) Valid() bool {
	for _, v := range AspectRatios {
		if a == v {
			return true
		}
	}
	return false
}

// ParseAspectRatio converts user input into an AspectRatio.
// An empty string selects the square default.
func ParseAspectRatio(s string) (AspectRatio, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AspectSquare, nil
	}
	a := AspectRatio(s)
	if !a.Valid() {
		return "", fmt.Errorf("unsupported aspect ratio %q (want one of 1:1, 16:9, 9:16, 4:3, 3:4)", s)
	}
	return a, nil
}

// PromptMode selects how the prompt input is interpreted.
type PromptMode string

const (
	// PromptModeSingle takes a list of descriptors, each with a repeat count.
	PromptModeSingle PromptMode = "single"
	// PromptModeBulk takes free text with one prompt per line.
	PromptModeBulk PromptMode = "bulk"
)

// GenerationMode names a style preset.
type GenerationMode string

const (
	ModePixel       GenerationMode = "pixel"
	ModeStickFigure GenerationMode = "stickfigure"
	ModeReal        GenerationMode = "real"
	ModeCustom      GenerationMode = "custom"
)

// PromptDescriptor is a single-mode prompt row. Text is used as given
// after trimming; Count is how many tasks it expands to.
type PromptDescriptor struct {
	ID    string `json:"id" yaml:"id"`
	Text  string `json:"text" yaml:"text"`
	Count int    `json:"count" yaml:"count"`
}

// GenerationTask is one unit of remote work producing one image.
// PromptIndex is shared by every task expanded from the same prompt group.
type GenerationTask struct {
	OriginalPrompt string
	PromptIndex    int
}

// MarshalLogObject implements zapcore.ObjectMarshaler for structured logging.
func (t GenerationTask) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("prompt", t.OriginalPrompt)
	enc.AddInt("prompt_index", t.PromptIndex)
	return nil
}

// ImageRecord is a persisted generated image.
type ImageRecord struct {
	// ID is unique across the store and sorts by creation time.
	ID int64 `json:"id"`
	// Src is a data URI carrying the base64 JPEG payload.
	Src string `json:"src"`
	// Prompt is the original prompt, without any style prefix.
	Prompt string `json:"prompt"`
	// PromptIndex is the group index of the task that produced the image.
	// Nil for records written before the index existed.
	PromptIndex *int `json:"promptIndex,omitempty"`
	// CreatedAt is when the record was stored.
	CreatedAt time.Time `json:"createdAt"`
}

// JPEGDataURIPrefix prefixes the base64 payload in ImageRecord.Src.
const JPEGDataURIPrefix = "data:image/jpeg;base64,"

// JPEGDataURI wraps a base64 JPEG payload in a data URI.
func JPEGDataURI(b64 string) string {
	return JPEGDataURIPrefix + b64
}

// Payload returns the base64 part of Src, or Src itself if it carries no
// data URI header.
func (r ImageRecord) Payload() string {
	if i := strings.IndexByte(r.Src, ','); i >= 0 && strings.HasPrefix(r.Src, "data:") {
		return r.Src[i+1:]
	}
	return r.Src
}

var (
	idMu   sync.Mutex
	lastID int64
)

// NewImageID returns a unique record identifier: the current time in
// milliseconds times 1000 plus a random value below 1000. Two processes
// writing the same store in the same millisecond almost never collide, and
// within the process an id is bumped past the last one issued. Ids stay
// below 2^53 so browsers read them exactly.
func NewImageID() int64 {
	idMu.Lock()
	defer idMu.Unlock()

	lastID = nextImageID(lastID, time.Now().UnixMilli(), rand.Int64N(1000))
	return lastID
}

func nextImageID(last, nowMilli, nonce int64) int64 {
	id := nowMilli*1000 + nonce
	if id <= last {
		id = last + 1
	}
	return id
}

// Package archive builds downloads for a selection of stored images: a
// single JPEG when one image is selected, a zip otherwise.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pixelbatch/core"
)

// ZipName is the download name for multi-image exports.
const ZipName = "gemini-pixel-images.zip"

const (
	maxSafeLen   = 50
	fallbackName = "generated_image"
)

// ErrNothingSelected is returned when the selection matches no image.
var ErrNothingSelected = errors.New("archive: no images selected")

// Download is a ready-to-serve export.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
	// Count is the number of images included.
	Count int
}

// Entry is one selected image with its card index resolved.
type Entry struct {
	Record    core.ImageRecord
	CardIndex int
}

// SafeName replaces every character outside [A-Za-z0-9_] with '_' and
// truncates to 50 characters. Characters outside the BMP count twice, as
// they do in a browser.
func SafeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r > 0xFFFF:
			b.WriteString("__")
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > maxSafeLen {
		out = out[:maxSafeLen]
	}
	return out
}

// Select resolves ids against images, which must be newest first. Each
// entry's card index is its prompt index, or its display index
// (len(images) - position) when the record has none. Entries keep the
// order of images.
func Select(images []core.ImageRecord, ids []int64) []Entry {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var entries []Entry
	for i, rec := range images {
		if _, ok := want[rec.ID]; !ok {
			continue
		}
		idx := len(images) - i
		if rec.PromptIndex != nil {
			idx = *rec.PromptIndex
		}
		entries = append(entries, Entry{Record: rec, CardIndex: idx})
	}
	return entries
}

// Build exports the selected images.
func Build(images []core.ImageRecord, ids []int64) (*Download, error) {
	entries := Select(images, ids)
	switch len(entries) {
	case 0:
		return nil, ErrNothingSelected
	case 1:
		return single(entries[0])
	default:
		return zipEntries(entries)
	}
}

func single(e Entry) (*Download, error) {
	data, err := decode(e.Record)
	if err != nil {
		return nil, err
	}
	name := SafeName(strconv.Itoa(e.CardIndex) + "-" + e.Record.Prompt)
	if name == "" {
		name = fallbackName
	}
	return &Download{
		Filename:    name + ".jpeg",
		ContentType: "image/jpeg",
		Data:        data,
		Count:       1,
	}, nil
}

func zipEntries(entries []Entry) (*Download, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]int, len(entries))

	for _, e := range entries {
		data, err := decode(e.Record)
		if err != nil {
			return nil, err
		}
		safe := SafeName(e.Record.Prompt)
		if safe == "" {
			safe = fallbackName
		}
		base := fmt.Sprintf("%d-%s", e.CardIndex, safe)

		filename := base + ".jpeg"
		if n := seen[base]; n > 0 {
			filename = fmt.Sprintf("%s_(%d).jpeg", base, n)
		}
		seen[base]++

		w, err := zw.Create(filename)
		if err != nil {
			return nil, fmt.Errorf("archive: create %s: %w", filename, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("archive: write %s: %w", filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: close zip: %w", err)
	}

	return &Download{
		Filename:    ZipName,
		ContentType: "application/zip",
		Data:        buf.Bytes(),
		Count:       len(entries),
	}, nil
}

func decode(rec core.ImageRecord) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(rec.Payload())
	if err != nil {
		return nil, fmt.Errorf("archive: image %d has invalid data: %w", rec.ID, err)
	}
	return data, nil
}

package ocr

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

// stripReasoning removes every complete <think>...</think> block and trims the
// remaining text. An unclosed tag is left in place.
func stripReasoning(content string) string {
	for {
		start := strings.Index(content, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "</think>")
		if end == -1 {
			break
		}
		content = content[:start] + content[start+end+len("</think>"):]
	}
	return strings.TrimSpace(content)
}

// encodeJPEG encodes img at the given quality.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// contentKey is the cache key of an optimized image: the hex MD5 of its bytes.
func contentKey(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

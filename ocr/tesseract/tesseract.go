// Package tesseract provides the local OCR engine backed by libtesseract.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// ErrUnavailable is returned when libtesseract cannot be loaded.
var ErrUnavailable = errors.New("tesseract is not available")

// client is the part of *gosseract.Client the engine drives.
type client interface {
	SetPageSegMode(mode gosseract.PageSegMode) error
	SetLanguage(langs ...string) error
	SetImageFromBytes(data []byte) error
	Text() (string, error)
	Close() error
}

// Engine runs Tesseract in single uniform block mode.
type Engine struct {
	newClient func() client
	languages []string
}

// New creates an engine for the given languages (empty means Tesseract's default).
func New(languages ...string) (*Engine, error) {
	if gosseract.Version() == "" {
		return nil, ErrUnavailable
	}
	return &Engine{
		newClient: func() client { return gosseract.NewClient() },
		languages: languages,
	}, nil
}

// Extract recognizes the text of one encoded image.
func (e *Engine) Extract(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := e.newClient()
	defer c.Close()

	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", fmt.Errorf("set page segmentation mode: %w", err)
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// ParseLanguages splits a "eng+deu" or "eng,deu" list.
func ParseLanguages(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	})
	return fields
}

// Package validator checks user input and parses model output.
package validator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

// spaceRegexp is compiled once at package init and reused across all Sanitize calls.
var spaceRegexp = regexp.MustCompile(`\s+`)

// ImageExtensions lists the file types the drawing pipeline can decode.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

type InputValidator struct {
	maxLength int
	minLength int
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		maxLength: 4000,
		minLength: 2,
	}
}

func (v *InputValidator) Validate(query string) error {
	if !utf8.ValidString(query) {
		return errors.New("invalid UTF-8 encoding")
	}

	if strings.TrimSpace(query) == "" {
		return errors.New("query is empty")
	}

	if n := utf8.RuneCountInString(query); n < v.minLength {
		return fmt.Errorf("query too short: minimum %d characters", v.minLength)
	} else if n > v.maxLength {
		return fmt.Errorf("query too long: maximum %d characters", v.maxLength)
	}

	return nil
}

func (v *InputValidator) Sanitize(query string) string {
	query = strings.TrimSpace(query)
	query = spaceRegexp.ReplaceAllString(query, " ")
	return query
}

// ValidateImage checks that path names a readable file with a supported
// image extension.
func (v *InputValidator) ValidateImage(path string) error {
	if path == "" {
		return errors.New("image path is empty")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !lo.Contains(ImageExtensions, ext) {
		return fmt.Errorf("unsupported image type %q", ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("image: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("image: %s is a directory", path)
	}
	return nil
}

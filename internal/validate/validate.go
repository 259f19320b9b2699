// Package validate holds the pure artifact checks run before any network
// request. None of these touch the domain availability checker or any other
// remote endpoint; the authoritative checks happen server-side at submit.
package validate

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxArchiveSize is the upload ceiling for source and seed archives.
const MaxArchiveSize = 100 << 20 // 100 MB

var (
	ErrInvalidArchive        = errors.New("validate: invalid archive")
	ErrInvalidImageReference = errors.New("validate: invalid image reference")
	ErrInvalidDomainLabel    = errors.New("validate: invalid domain label")
)

var (
	// [owner/]name[:tag] — owner and tag are both optional, so a bare
	// library reference such as "nginx" is accepted.
	imageRefPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+(/[A-Za-z0-9._-]+)?(:[A-Za-z0-9._-]+)?$`)

	// DNS label: lowercase alphanumeric and hyphen, no edge hyphens.
	domainLabelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
)

// Archive rejects uploads that are not .zip files or exceed MaxArchiveSize.
func Archive(name string, size int64) error {
	if err := validation.Validate(strings.TrimSpace(name),
		validation.Required,
		validation.By(zipExtension),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if size > MaxArchiveSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrInvalidArchive, size, int64(MaxArchiveSize))
	}
	return nil
}

func zipExtension(value interface{}) error {
	name, _ := value.(string)
	if !strings.EqualFold(filepath.Ext(name), ".zip") {
		return errors.New("must be a .zip file")
	}
	return nil
}

// ImageReference checks the [owner/]name[:tag] shape of an image reference.
func ImageReference(ref string) error {
	if err := validation.Validate(strings.TrimSpace(ref),
		validation.Required,
		validation.Match(imageRefPattern),
	); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidImageReference, ref)
	}
	return nil
}

// DomainLabel checks a candidate DNS label: 3-63 characters, lowercase
// alphanumeric and hyphen, no leading or trailing hyphen. This is a purely
// syntactic check and says nothing about availability.
func DomainLabel(label string) error {
	if err := validation.Validate(label,
		validation.Required,
		validation.Length(3, 63),
		validation.Match(domainLabelPattern),
	); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDomainLabel, label)
	}
	return nil
}

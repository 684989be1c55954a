package tenants

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/platinummonkey/warden/pkg/domain"
)

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	domainPattern   = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)
	languagePattern = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z0-9]{2,8})*$`)
)

const (
	minSlugLength = 3
	maxSlugLength = 63
	maxNameLength = 255
)

// ValidateSlug checks that slug is URL-safe and 3-63 characters
func ValidateSlug(slug string) error {
	if len(slug) < minSlugLength || len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug must be %d-%d characters", domain.ErrInvalidInput, minSlugLength, maxSlugLength)
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: slug may contain lowercase letters, digits and single hyphens", domain.ErrInvalidInput)
	}
	return nil
}

// Slugify derives a slug candidate from a display name
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, slug)

	// collapse hyphen runs
	parts := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' })
	slug = strings.Join(parts, "-")

	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return "", fmt.Errorf("%w: name must be 1-%d characters", domain.ErrInvalidInput, maxNameLength)
	}
	return name, nil
}

func normalizeDomain(d *string) (*string, error) {
	if d == nil {
		return nil, nil
	}
	v := strings.ToLower(strings.TrimSpace(*d))
	if v == "" {
		return nil, nil
	}
	if len(v) > 255 || !domainPattern.MatchString(v) {
		return nil, fmt.Errorf("%w: invalid custom domain", domain.ErrInvalidInput)
	}
	return &v, nil
}

func validateLanguage(lang string) error {
	if len(lang) > 16 || !languagePattern.MatchString(lang) {
		return fmt.Errorf("%w: invalid language tag", domain.ErrInvalidInput)
	}
	return nil
}

func validateModules(modules []string) ([]string, error) {
	seen := make(map[string]bool, len(modules))
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		m = strings.TrimSpace(m)
		if !slugPattern.MatchString(m) {
			return nil, fmt.Errorf("%w: invalid module identifier %q", domain.ErrInvalidInput, m)
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("%w: invalid email address", domain.ErrInvalidInput)
	}
	return strings.ToLower(addr.Address), nil
}

package skilldoc

import (
	"regexp"
)

const (
	MaxNameLength   = 64
	MaxDescLength   = 1024
	MaxCompatLength = 500
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidateSkill checks the required frontmatter fields.
func ValidateSkill(s Skill) error {
	if err := validateName(s.Name); err != nil {
		return err
	}
	if err := validateDescription(s.Description); err != nil {
		return err
	}
	return validateCompatibility(s.Compatibility)
}

func validateName(name string) error {
	if name == "" {
		return ErrMissingName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

func validateDescription(desc string) error {
	if desc == "" {
		return ErrMissingDesc
	}
	if len(desc) > MaxDescLength {
		return ErrDescTooLong
	}
	return nil
}

func validateCompatibility(compat string) error {
	if len(compat) > MaxCompatLength {
		return ErrCompatTooLong
	}
	return nil
}

package models

import (
	"fmt"
	"regexp"
	"strings"
)

// EntityID is the 8-digit unified business/company registration number.
// Canonical form is zero-padded to 8 digits; the first digit selects the
// on-disk shard directory.
type EntityID string

var idDigits = regexp.MustCompile(`^\d{1,8}$`)

// NormalizeID validates a raw ID string and returns its canonical
// zero-padded form. Padding is idempotent: NormalizeID of an already
// canonical ID returns it unchanged.
func NormalizeID(raw string) (EntityID, error) {
	trimmed := strings.TrimSpace(raw)
	if !idDigits.MatchString(trimmed) {
		return "", fmt.Errorf("invalid entity id %q: want 1-8 digits", raw)
	}
	for len(trimmed) < 8 {
		trimmed = "0" + trimmed
	}
	return EntityID(trimmed), nil
}

// String implements fmt.Stringer for logging
func (id EntityID) String() string { return string(id) }

// Shard returns the leading digit used as the shard directory name.
func (id EntityID) Shard() string {
	if id == "" {
		return "0"
	}
	return string(id[0])
}

// EntityKind selects between the two registry entity types. It determines
// the search form parameters, the detail-page container, and the output
// directory.
type EntityKind string

const (
	KindCompany  EntityKind = "company"
	KindBusiness EntityKind = "business"
)

// String implements fmt.Stringer for logging
func (k EntityKind) String() string { return string(k) }

// IsValid returns true if the kind is a known value
func (k EntityKind) IsValid() bool {
	return k == KindCompany || k == KindBusiness
}

// Plural returns the output directory name for the kind.
func (k EntityKind) Plural() string {
	switch k {
	case KindCompany:
		return "companies"
	case KindBusiness:
		return "businesses"
	}
	return string(k) + "s"
}

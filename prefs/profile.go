package prefs

import (
	"fmt"
	"strings"
)

// Profile is the artifact-collection level requested when starting a run.
type Profile string

const (
	ProfileNone     Profile = "none"
	ProfileMinimal  Profile = "minimal"
	ProfileStandard Profile = "standard"
	ProfileFull     Profile = "full"
)

// DefaultProfile is used when no valid profile is stored.
const DefaultProfile = ProfileStandard

// Profiles lists the valid profiles from least to most collection.
func Profiles() []Profile {
	return []Profile{ProfileNone, ProfileMinimal, ProfileStandard, ProfileFull}
}

func (p Profile) String() string {
	return string(p)
}

// Valid reports whether p is one of the known profiles.
func (p Profile) Valid() bool {
	switch p {
	case ProfileNone, ProfileMinimal, ProfileStandard, ProfileFull:
		return true
	default:
		return false
	}
}

// ParseProfile converts a user-supplied value into a Profile.
func ParseProfile(value string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(value)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown artifact profile %q (want one of none, minimal, standard, full)", value)
	}
	return p, nil
}

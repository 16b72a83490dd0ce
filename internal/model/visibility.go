package model

import "strings"

// Visibility is the ordered set of usernames allowed to see an item.
// The first entry is the owner.
type Visibility []string

// visibilitySep terminates each entry of the legacy string form.
const visibilitySep = ","

// NewVisibility returns a visibility set containing only the owner.
func NewVisibility(owner string) Visibility {
	return Visibility{owner}
}

// ParseVisibility reads the legacy comma-terminated form ("alice,bob,").
// Blank entries and repeats are dropped; the first entry stays the owner.
func ParseVisibility(s string) Visibility {
	var v Visibility
	for _, name := range strings.Split(s, visibilitySep) {
		name = strings.TrimSpace(name)
		if name == "" || v.Contains(name) {
			continue
		}
		v = append(v, name)
	}
	return v
}

// String encodes the set in the legacy comma-terminated form.
func (v Visibility) String() string {
	var b strings.Builder
	for _, name := range v {
		b.WriteString(name)
		b.WriteString(visibilitySep)
	}
	return b.String()
}

// Owner returns the first entry, or "" for an empty set.
func (v Visibility) Owner() string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Contains reports whether username is an exact member of the set.
func (v Visibility) Contains(username string) bool {
	for _, name := range v {
		if name == username {
			return true
		}
	}
	return false
}

// Rebuild returns a new set made of the owner followed by every selected
// username that appears in known. Unknown names and repeats are dropped.
func (v Visibility) Rebuild(selected, known []string) Visibility {
	owner := v.Owner()
	out := Visibility{}
	if owner != "" {
		out = append(out, owner)
	}

	directory := make(map[string]bool, len(known))
	for _, name := range known {
		directory[name] = true
	}

	for _, name := range selected {
		name = strings.TrimSpace(name)
		if !directory[name] || out.Contains(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

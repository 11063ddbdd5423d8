package webassets

import "strings"

// DefaultHiddenMarker is the prefix that excludes an asset (or a whole
// directory of assets) from default listings.
const DefaultHiddenMarker = '_'

// ValidatePath checks an asset path against the path grammar: slash-separated
// segments of letters, digits, dot, underscore and hyphen. Relative only, no
// empty segments, no "." or ".." segments. Called at registration time and on
// every lookup so URL-derived paths can never escape a category root.
func ValidatePath(path string) error {
	if path == "" {
		return &InvalidPathError{Path: path, Reason: "empty path"}
	}
	if strings.HasPrefix(path, "/") {
		return &InvalidPathError{Path: path, Reason: "absolute path"}
	}
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "":
			return &InvalidPathError{Path: path, Reason: "empty segment"}
		case ".", "..":
			return &InvalidPathError{Path: path, Reason: "relative segment " + seg}
		}
		for _, c := range seg {
			if !validPathChar(c) {
				return &InvalidPathError{Path: path, Reason: "character " + string(c) + " not allowed"}
			}
		}
	}
	return nil
}

func validPathChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '.' || c == '_' || c == '-':
		return true
	}
	return false
}

// hiddenPath reports whether the path itself or any ancestor segment starts
// with the hidden marker.
func hiddenPath(path string, marker byte) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg != "" && seg[0] == marker {
			return true
		}
	}
	return false
}

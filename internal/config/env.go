package config

import (
	"fmt"
	"strings"
)

// Environment knobs honoured when a system library is linked.
const (
	EnvLinkType = "LIBSECCOMP_LINK_TYPE"
	EnvLibPath  = "LIBSECCOMP_LIB_PATH"
)

// LinkKind is how the consumer links the library.
type LinkKind string

const (
	LinkStatic    LinkKind = "static"
	LinkDynamic   LinkKind = "dylib"
	LinkFramework LinkKind = "framework"
)

// ParseLinkKind accepts static, dylib (or dynamic) and framework.
func ParseLinkKind(s string) (LinkKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static":
		return LinkStatic, nil
	case "dylib", "dynamic":
		return LinkDynamic, nil
	case "framework":
		return LinkFramework, nil
	}
	return "", fmt.Errorf("unknown link kind %q: want static, dylib or framework", s)
}

// Overrides are the two optional environment overrides. Both are only
// meaningful when a system library is linked.
type Overrides struct {
	LinkKind LinkKind // empty when unset
	LibPath  string   // empty when unset
}

// OverridesFrom reads LIBSECCOMP_LINK_TYPE and LIBSECCOMP_LIB_PATH.
func OverridesFrom(getenv func(string) string) (Overrides, error) {
	var ov Overrides
	if v := getenv(EnvLinkType); v != "" {
		k, err := ParseLinkKind(v)
		if err != nil {
			return ov, fmt.Errorf("%s: %w", EnvLinkType, err)
		}
		ov.LinkKind = k
	}
	ov.LibPath = getenv(EnvLibPath)
	return ov, nil
}

// Package version compares the version strings reported by pkg-config and
// pinned in the build configuration.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Compare returns -1, 0 or +1 depending on whether a < b, a == b or a > b.
//
// Versions that are valid semantic versions once prefixed with "v"
// ("2.5", "2.5.1", "2.6.0-rc1") are compared with semver rules. Anything
// else falls back to GNU version ordering, as used by sort -V.
func Compare(a, b string) int {
	va, vb := canonical(a), canonical(b)
	if semver.IsValid(va) && semver.IsValid(vb) {
		return semver.Compare(va, vb)
	}
	return sign(verrevcmp([]byte(a), []byte(b)))
}

// AtLeast reports whether have >= want. An empty want is always satisfied.
func AtLeast(have, want string) bool {
	if want == "" {
		return true
	}
	return Compare(have, want) >= 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Triple is a parsed major.minor.micro version.
type Triple struct {
	Major, Minor, Micro int
}

// ParseTriple parses "X.Y.Z". Missing trailing components are zero.
func ParseTriple(v string) (Triple, error) {
	var t Triple
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(v), "v"), ".")
	if len(parts) == 0 || len(parts) > 3 || parts[0] == "" {
		return t, fmt.Errorf("invalid version %q: want major.minor.micro", v)
	}
	dst := []*int{&t.Major, &t.Minor, &t.Micro}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return t, fmt.Errorf("invalid version %q: bad component %q", v, p)
		}
		*dst[i] = n
	}
	return t, nil
}

func (t Triple) String() string {
	return fmt.Sprintf("%d.%d.%d", t.Major, t.Minor, t.Micro)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// verrevcmp is the GNU version comparison: non-digit runs are compared
// character by character (letters before punctuation, '~' before
// everything, end of string before anything but '~'), digit runs are
// compared numerically.
func verrevcmp(a, b []byte) int {
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		for (i < len(a) && !isDigit(a[i])) || (j < len(b) && !isDigit(b[j])) {
			oa, ob := order(at(a, i)), order(at(b, j))
			if oa != ob {
				return oa - ob
			}
			i++
			j++
		}
		for i < len(a) && a[i] == '0' {
			i++
		}
		for j < len(b) && b[j] == '0' {
			j++
		}
		diff := 0
		for i < len(a) && j < len(b) && isDigit(a[i]) && isDigit(b[j]) {
			if diff == 0 {
				diff = int(a[i]) - int(b[j])
			}
			i++
			j++
		}
		if i < len(a) && isDigit(a[i]) {
			return 1
		}
		if j < len(b) && isDigit(b[j]) {
			return -1
		}
		if diff != 0 {
			return diff
		}
	}
	return 0
}

func at(s []byte, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func order(c byte) int {
	switch {
	case isDigit(c), c == 0:
		return 0
	case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		return int(c)
	case c == '~':
		return -1
	}
	return int(c) + 256
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

package cache

import "strings"

// DefaultPrefix is the naming prefix shared by every namespace this application owns.
const DefaultPrefix = "energy-monitor"

type Purpose string

const (
	PurposeStatic  Purpose = "static"
	PurposeRuntime Purpose = "runtime"
	PurposeImages  Purpose = "images"
)

// Names holds the three namespace names of one version.
type Names struct {
	Static  string `json:"static"`
	Runtime string `json:"runtime"`
	Images  string `json:"images"`
}

// NamesFor derives the namespace names for prefix and version.
func NamesFor(prefix, version string) Names {
	return Names{
		Static:  NamespaceName(prefix, PurposeStatic, version),
		Runtime: NamespaceName(prefix, PurposeRuntime, version),
		Images:  NamespaceName(prefix, PurposeImages, version),
	}
}

func NamespaceName(prefix string, purpose Purpose, version string) string {
	return prefix + "-" + string(purpose) + "-" + version
}

func (n Names) All() []string {
	return []string{n.Static, n.Runtime, n.Images}
}

func (n Names) Contains(name string) bool {
	return name == n.Static || name == n.Runtime || name == n.Images
}

// IsStale reports whether name belongs to this application but not to the current names.
// Names without the prefix are never stale.
func IsStale(prefix string, current Names, name string) bool {
	return strings.HasPrefix(name, prefix+"-") && !current.Contains(name)
}

// ParseName splits a namespace name produced by NamespaceName back into purpose and version.
func ParseName(prefix, name string) (Purpose, string, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"-")
	if !ok {
		return "", "", false
	}
	for _, p := range []Purpose{PurposeStatic, PurposeRuntime, PurposeImages} {
		if v, ok := strings.CutPrefix(rest, string(p)+"-"); ok && v != "" {
			return p, v, true
		}
	}
	return "", "", false
}

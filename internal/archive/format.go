package archive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/open-edge-platform/release-packager/internal/utils/compression"
)

// Format is an archive container plus its stream compression.
type Format string

const (
	Zip    Format = "zip"
	Tar    Format = "tar"
	TarGz  Format = "tar.gz"
	TarXz  Format = "tar.xz"
	TarZst Format = "tar.zst"
	TarLz4 Format = "tar.lz4"
	TarBz2 Format = "tar.bz2"
)

var formatAliases = map[string]Format{
	"tgz":  TarGz,
	"txz":  TarXz,
	"tzst": TarZst,
	"tbz2": TarBz2,
}

var formatCodecs = map[Format]compression.Codec{
	Tar:    compression.None,
	TarGz:  compression.Gzip,
	TarXz:  compression.Xz,
	TarZst: compression.Zstd,
	TarLz4: compression.Lz4,
	TarBz2: compression.Bzip2,
}

// skipKeys holds the property that disables a format for one profile or
// variant.
var skipKeys = map[Format]string{
	Zip:    "skipZip",
	Tar:    "skipTar",
	TarGz:  "skipTarGz",
	TarXz:  "skipTarXz",
	TarZst: "skipTarZst",
	TarLz4: "skipTarLz4",
}

func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	if f, ok := formatAliases[s]; ok {
		return f, nil
	}
	f := Format(s)
	if f == Zip {
		return f, nil
	}
	if _, ok := formatCodecs[f]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unsupported archive format %q", s)
}

// DetectFormat infers the format from a file name.
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)
	candidates := make([]string, 0, len(formatCodecs)+len(formatAliases)+1)
	candidates = append(candidates, string(Zip))
	for f := range formatCodecs {
		candidates = append(candidates, string(f))
	}
	for alias := range formatAliases {
		candidates = append(candidates, alias)
	}
	// Longest suffix first so "tar.gz" wins over "tar".
	sort.Slice(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })
	for _, c := range candidates {
		if strings.HasSuffix(lower, "."+c) {
			return ParseFormat(c)
		}
	}
	return "", fmt.Errorf("cannot detect archive format of %q", name)
}

// Extension is the file suffix including the leading dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Writable reports whether Pack can produce the format.
func (f Format) Writable() bool {
	return f != TarBz2
}

func (f Format) IsTar() bool {
	_, ok := formatCodecs[f]
	return ok
}

// SkipKey is the property name that disables this format, or "".
func (f Format) SkipKey() string {
	return skipKeys[f]
}

// TrimExtension removes the format suffix from name.
func (f Format) TrimExtension(name string) string {
	if strings.HasSuffix(strings.ToLower(name), f.Extension()) {
		return name[:len(name)-len(f.Extension())]
	}
	for alias, target := range formatAliases {
		if target == f && strings.HasSuffix(strings.ToLower(name), "."+alias) {
			return name[:len(name)-len(alias)-1]
		}
	}
	return name
}

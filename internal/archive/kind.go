package archive

import (
	"fmt"
	"strings"
)

// Kind is the role a classified blob plays within a site's bundle set.
type Kind string

const (
	// KindMain is the primary application bundle.
	KindMain Kind = "main"
	// KindChat is the lazily loaded chat module.
	KindChat Kind = "chat"
	// KindMobile is the main bundle as served to a mobile device.
	KindMobile Kind = "mobile"
	// KindEmbed is the embedded player bundle.
	KindEmbed Kind = "embed"
	// KindBoot is the boot loader carrying the version descriptor.
	KindBoot Kind = "boot"
	// KindPasswordManager is the password manager module.
	KindPasswordManager Kind = "pwm"
	// KindAll is the wildcard selecting every kind of a version.
	KindAll Kind = "*"
)

// Kinds lists every concrete kind in display order.
func Kinds() []Kind {
	return []Kind{KindMain, KindChat, KindMobile, KindEmbed, KindBoot, KindPasswordManager}
}

// ParseKind accepts a concrete kind name, "*" or "all".
func ParseKind(raw string) (Kind, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "*", "all":
		return KindAll, nil
	}
	for _, k := range Kinds() {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// Ref addresses one artifact.
type Ref struct {
	Version Version
	Domain  string
	Kind    Kind
}

// FileName returns the uncompressed file name of the artifact inside its version directory.
func (r Ref) FileName() string {
	return fmt.Sprintf("%s.%s.js", r.Domain, r.Kind)
}

// String renders the reference for logs.
func (r Ref) String() string {
	return r.Version.String() + "/" + r.FileName()
}

// ParseFileName splits "<domain>.<kind>.js[.gz]" into its parts.
func ParseFileName(name string) (domain string, kind Kind, compressed bool, ok bool) {
	if strings.HasSuffix(name, ".gz") {
		compressed = true
		name = strings.TrimSuffix(name, ".gz")
	}
	if !strings.HasSuffix(name, ".js") {
		return "", "", false, false
	}
	name = strings.TrimSuffix(name, ".js")
	idx := strings.LastIndex(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false, false
	}
	parsed, err := ParseKind(name[idx+1:])
	if err != nil || parsed == KindAll {
		return "", "", false, false
	}
	return name[:idx], parsed, compressed, true
}

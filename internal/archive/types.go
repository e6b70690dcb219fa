package archive

import (
	"regexp"
	"strings"
	"time"
)

// Blob is one script resource captured from a page: its blob: URL and its lines.
type Blob struct {
	Source string
	Lines  []string
}

// Line returns the line at idx, or "" when the blob is shorter.
func (b Blob) Line(idx int) string {
	if idx < 0 || idx >= len(b.Lines) {
		return ""
	}
	return b.Lines[idx]
}

// Text joins the lines back into the original script text.
func (b Blob) Text() string {
	return strings.Join(b.Lines, "\n")
}

// Descriptor is the version information a deployment publishes about itself.
type Descriptor struct {
	Label     string `json:"website"`
	Timestamp string `json:"timestamp"`
	BuildRef  string `json:"commit"`
}

// CaptureRequest tells a Capturer which page to load and how.
type CaptureRequest struct {
	URL           string
	ReadySelector string
	// Device names an emulation profile such as "iPhone 8 Plus"; empty means desktop.
	Device      string
	Preload     string
	VersionExpr string
}

// Capture is the complete result of one page capture.
type Capture struct {
	Blobs      []Blob
	Descriptor Descriptor
}

// Pointer is the value of the "last" record.
type Pointer struct {
	Version Version
	Updated time.Time
}

// Variant distinguishes the primary capture from additional sub-captures.
type Variant string

// Capture variants.
const (
	VariantPrimary Variant = "primary"
	VariantMobile  Variant = "mobile"
	VariantEmbed   Variant = "embed"
)

// Site describes one deployment to archive.
type Site struct {
	Domain        string   `mapstructure:"domain"`
	Name          string   `mapstructure:"name"`
	Path          string   `mapstructure:"path"`
	Hash          string   `mapstructure:"hash"`
	WaitSelector  string   `mapstructure:"wait_selector"`
	Preload       string   `mapstructure:"preload"`
	VersionExpr   string   `mapstructure:"version_expr"`
	Rules         string   `mapstructure:"rules"`
	Required      []string `mapstructure:"required"`
	Mobile        bool     `mapstructure:"mobile"`
	Embed         bool     `mapstructure:"embed"`
	EmbedPath     string   `mapstructure:"embed_path"`
	EmbedSelector string   `mapstructure:"embed_selector"`
}

// Site defaults applied by WithDefaults.
const (
	DefaultWaitSelector  = ".startpage.register"
	DefaultVersionExpr   = "buildVersion"
	DefaultEmbedPath     = "embed/AAA"
	DefaultEmbedSelector = ".embedplayer"
)

var nonWord = regexp.MustCompile(`\W+`)

// DomainName reduces a domain or site name to the artifact prefix, e.g. "mega.nz" -> "meganz".
func DomainName(raw string) string {
	return nonWord.ReplaceAllString(strings.TrimSpace(raw), "")
}

// WithDefaults fills unset fields.
func (s Site) WithDefaults() Site {
	if s.Name == "" {
		s.Name = DomainName(s.Domain)
	} else {
		s.Name = DomainName(s.Name)
	}
	if s.WaitSelector == "" {
		s.WaitSelector = DefaultWaitSelector
	}
	if s.VersionExpr == "" {
		s.VersionExpr = DefaultVersionExpr
	}
	if s.Rules == "" {
		s.Rules = s.Name
	}
	if s.EmbedPath == "" {
		s.EmbedPath = DefaultEmbedPath
	}
	if s.EmbedSelector == "" {
		s.EmbedSelector = DefaultEmbedSelector
	}
	return s
}

// URL returns the page URL for the primary and mobile passes.
func (s Site) URL() string {
	return "https://" + s.Domain + "/" + strings.TrimPrefix(s.Path, "/") + "#" + s.Hash
}

// EmbedURL returns the page URL for the embedded player pass.
func (s Site) EmbedURL() string {
	return "https://" + s.Domain + "/" + strings.TrimPrefix(s.EmbedPath, "/")
}

// RequiredKinds parses Required, ignoring unknown names.
func (s Site) RequiredKinds() []Kind {
	kinds := make([]Kind, 0, len(s.Required))
	for _, raw := range s.Required {
		k, err := ParseKind(raw)
		if err != nil || k == KindAll {
			continue
		}
		kinds = append(kinds, k)
	}
	return kinds
}

// DefaultSites mirrors the deployments the archiver was built for.
func DefaultSites() []Site {
	return []Site{
		{
			Domain:   "mega.nz",
			Hash:     "no-redirect",
			Preload:  "M.require('chat')",
			Rules:    "meganz",
			Required: []string{string(KindMain)},
			Mobile:   true,
			Embed:    true,
		},
		{
			Domain:   "mega.io",
			Rules:    "megaio",
			Required: []string{string(KindMain)},
		},
	}
}

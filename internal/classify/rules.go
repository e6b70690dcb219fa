package classify

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

// Signature lines emitted by the bundlers of the archived deployments.
const (
	sjclBanner        = " *   sjcl.js"
	chatBanner        = " * var handler = {"
	bootBanner        = " *   js/boot.js"
	pwmBanner         = " *   js/pm/pwm.js"
	protectBanner     = " *   js/jquery.protect.js"
	embedPlayerMarker = "embedplayer.js"
	mobileSiteMarker  = "the mobile web site"
	noiseMarker       = "IllegalStateError"
	// noiseOffset is where noiseMarker sits in the comma-joined form of the
	// non-error helper bundle.
	noiseOffset = 35
)

var localeOrStyle = regexp.MustCompile(`^es6s|css/`)

// MegaNZ classifies the webclient bundles. Order matters: the embed and mobile
// checks must run before the generic main match on the same banner.
var MegaNZ = RuleSet{
	Name: "meganz",
	Rules: []Rule{
		{
			Name: "embed-player",
			Kind: archive.KindEmbed,
			Match: func(b archive.Blob) bool {
				return b.Line(1) == sjclBanner && strings.Contains(b.Line(6), embedPlayerMarker)
			},
		},
		{
			Name: "mobile-site",
			Kind: archive.KindMobile,
			Match: func(b archive.Blob) bool {
				return b.Line(1) == sjclBanner && strings.Contains(joined(b.Lines), mobileSiteMarker)
			},
		},
		{
			Name:  "main",
			Kind:  archive.KindMain,
			Match: lineEquals(1, sjclBanner),
		},
		{
			Name:  "chat",
			Kind:  archive.KindChat,
			Match: lineEquals(1, chatBanner),
		},
		{
			Name:  "boot",
			Kind:  archive.KindBoot,
			Match: lineEquals(1, bootBanner),
		},
		{
			Name:  "password-manager",
			Kind:  archive.KindPasswordManager,
			Match: lineEquals(1, pwmBanner),
		},
		{
			Name:    "locale-or-style",
			Discard: true,
			Match: func(b archive.Blob) bool {
				head := b.Lines
				if len(head) > 2 {
					head = head[:2]
				}
				return localeOrStyle.MatchString(joined(head))
			},
		},
		{
			Name:    "non-error-helper",
			Discard: true,
			Match: func(b archive.Blob) bool {
				flat := joined(b.Lines)
				return len(flat) > noiseOffset && strings.HasPrefix(flat[noiseOffset:], noiseMarker)
			},
		},
	},
}

// MegaIO classifies the marketing site, which serves a loader plus one main bundle.
var MegaIO = RuleSet{
	Name:          "megaio",
	ExpectedBlobs: 2,
	SkipLeading:   1,
	Rules: []Rule{
		{
			Name:  "main",
			Kind:  archive.KindMain,
			Match: lineEquals(2, protectBanner),
		},
	},
}

func lineEquals(idx int, want string) func(archive.Blob) bool {
	return func(b archive.Blob) bool {
		return b.Line(idx) == want
	}
}

// joined flattens lines with commas; the signature offsets are measured against this form.
func joined(lines []string) string {
	return strings.Join(lines, ",")
}

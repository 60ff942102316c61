// Package matcher tests inbound messages against route patterns.
//
// Patterns are literal text with {name} placeholders, each compiled to a
// wildcard capture group. Digit-only placeholders ({2}, {2,}, {2,4}) are
// regex repetition syntax, not named parameters, and pass through to the
// compiled expression untouched.
package matcher

import (
	"regexp"
	"strings"

	"botkit/internal/domain"
)

// Sentinel patterns representing "the next message carries an attachment
// of this kind". Drivers set the message text to the sentinel when an
// inbound message is media-only.
const (
	GenericPattern  = ".*"
	ImagePattern    = "%%%_IMAGE_%%%"
	VideoPattern    = "%%%_VIDEO_%%%"
	AudioPattern    = "%%%_AUDIO_%%%"
	FilePattern     = "%%%_FILE_%%%"
	LocationPattern = "%%%_LOCATION_%%%"
	ContactPattern  = "%%%_CONTACT_%%%"
)

var (
	placeholderRe = regexp.MustCompile(`\{(\w+?)\}`)
	digitsOnlyRe  = regexp.MustCompile(`^\d+$`)
)

// Matcher compiles and evaluates route patterns. Captures of the last
// successful IsPatternValid call are retrievable afterward; dispatch is
// single-threaded, so one Matcher per bot suffices.
type Matcher struct {
	matches []string
}

func New() *Matcher {
	return &Matcher{}
}

// IsPatternValid tests a message against a pattern, first on the raw
// message text, then on the trimmed answer value. Captured groups stay
// available through Matches until the next call.
func (m *Matcher) IsPatternValid(msg *domain.IncomingMessage, answer *domain.Answer, pattern string) bool {
	m.matches = nil

	re, err := Compile(pattern)
	if err != nil {
		return false
	}

	for _, candidate := range []string{msg.Text, strings.TrimSpace(answer.ValueText())} {
		if groups := re.FindStringSubmatch(candidate); groups != nil {
			captures := groups[1:]
			for i, c := range captures {
				captures[i] = strings.TrimRight(c, " \t")
			}
			m.matches = captures
			return true
		}
	}
	return false
}

// Matches returns the positional captures of the last successful match.
func (m *Matcher) Matches() []string {
	return m.matches
}

// Parameters reconciles the pattern's placeholder names with the last
// captures. When the counts line up the result is a name->value map;
// otherwise only the positional list is usable. The mismatch case usually
// indicates a pattern-authoring bug, but the positional fallback is kept
// so such routes still dispatch.
func (m *Matcher) Parameters(pattern string) (map[string]string, []string) {
	names := ParamNames(pattern)
	if len(names) != len(m.matches) {
		return nil, m.matches
	}
	named := make(map[string]string, len(names))
	for i, name := range names {
		named[name] = m.matches[i]
	}
	return named, m.matches
}

// ParamNames extracts the named placeholders of a pattern in order,
// excluding repetition syntax.
func ParamNames(pattern string) []string {
	var names []string
	for _, g := range placeholderRe.FindAllStringSubmatch(pattern, -1) {
		if digitsOnlyRe.MatchString(g[1]) {
			continue
		}
		names = append(names, g[1])
	}
	return names
}

// Compile turns a route pattern into an anchored, case-insensitive regex.
// A single trailing whitespace on either side is tolerated: the pattern is
// right-trimmed and the expression accepts one optional trailing space.
func Compile(pattern string) (*regexp.Regexp, error) {
	compiled := placeholderRe.ReplaceAllStringFunc(strings.TrimRight(pattern, " \t"), func(ph string) string {
		name := ph[1 : len(ph)-1]
		if digitsOnlyRe.MatchString(name) {
			return ph
		}
		return "(.*)"
	})
	return regexp.Compile(`(?is)^` + compiled + `\s?$`)
}

// IsDriverValid reports whether the current driver is allowed for a
// command. An empty allow list permits every driver.
func IsDriverValid(driverName string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == driverName {
			return true
		}
	}
	return false
}

// IsChannelValid reports whether the current channel is allowed for a
// command. An empty constraint permits every channel.
func IsChannelValid(recipient, allowed string) bool {
	return allowed == "" || allowed == recipient
}

// SentinelGetter maps an attachment sentinel pattern to the message getter
// that must yield data for the step to match.
func SentinelGetter(pattern string) (string, bool) {
	switch pattern {
	case ImagePattern:
		return domain.GetterImages, true
	case VideoPattern:
		return domain.GetterVideos, true
	case AudioPattern:
		return domain.GetterAudio, true
	case FilePattern:
		return domain.GetterFiles, true
	case LocationPattern:
		return domain.GetterLocation, true
	case ContactPattern:
		return domain.GetterContact, true
	}
	return "", false
}

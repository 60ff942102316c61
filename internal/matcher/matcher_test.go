package matcher

import (
	"reflect"
	"testing"

	"botkit/internal/domain"
)

func msg(text string) *domain.IncomingMessage {
	return domain.NewIncomingMessage(text, "user-1", "chat-1", nil)
}

func answerFor(m *domain.IncomingMessage) *domain.Answer {
	return domain.NewAnswer(m)
}

func TestIsPatternValid(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		text    string
		match   bool
		want    []string
	}{
		{"literal", "hi", "hi", true, []string{}},
		{"literal case-insensitive", "Hi", "hI", true, []string{}},
		{"literal mismatch", "hi", "hello", false, nil},
		{"one placeholder", "call me {name}", "call me Lara", true, []string{"Lara"}},
		{"placeholder mid-pattern", "deploy {app} to {env}", "deploy api to prod", true, []string{"api", "prod"}},
		{"placeholder captures empty", "call me {name}", "call me ", true, []string{""}},
		{"trailing space on message", "call me {name}", "call me Lara ", true, []string{"Lara"}},
		{"trailing space on pattern", "call me {name} ", "call me Lara", true, []string{"Lara"}},
		{"anchored start", "hi", "say hi", false, nil},
		{"anchored end", "hi", "hi there", false, nil},
		{"multiline text", "call me {name}", "call me Lara\nthe explorer", true, []string{"Lara\nthe explorer"}},
		{"quantifier placeholder stays regex", `ok{2}`, "okk", true, []string{}},
		{"quantifier placeholder no capture", `ok{2}`, "ok", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			in := msg(tt.text)
			got := m.IsPatternValid(in, answerFor(in), tt.pattern)
			if got != tt.match {
				t.Fatalf("IsPatternValid(%q, %q) = %v, want %v", tt.text, tt.pattern, got, tt.match)
			}
			if !tt.match {
				return
			}
			if len(tt.want) != len(m.Matches()) {
				t.Fatalf("captures = %v, want %v", m.Matches(), tt.want)
			}
			for i := range tt.want {
				if m.Matches()[i] != tt.want[i] {
					t.Fatalf("capture %d = %q, want %q", i, m.Matches()[i], tt.want[i])
				}
			}
		})
	}
}

func TestIsPatternValidFallsBackToAnswerValue(t *testing.T) {
	m := New()
	in := msg("%%%_IMAGE_%%%")
	answer := domain.NewAnswer(in)
	answer.FromCallback = true
	answer.Value = "call me Lara"

	if !m.IsPatternValid(in, answer, "call me {name}") {
		t.Fatal("expected match on the answer value")
	}
	if got := m.Matches(); len(got) != 1 || got[0] != "Lara" {
		t.Fatalf("captures = %v, want [Lara]", got)
	}
}

func TestParameters(t *testing.T) {
	m := New()
	in := msg("deploy api to prod")
	if !m.IsPatternValid(in, answerFor(in), "deploy {app} to {env}") {
		t.Fatal("expected match")
	}
	named, positional := m.Parameters("deploy {app} to {env}")
	if want := map[string]string{"app": "api", "env": "prod"}; !reflect.DeepEqual(named, want) {
		t.Fatalf("named = %v, want %v", named, want)
	}
	if want := []string{"api", "prod"}; !reflect.DeepEqual(positional, want) {
		t.Fatalf("positional = %v, want %v", positional, want)
	}
}

func TestParametersCountMismatchKeepsPositional(t *testing.T) {
	// An explicit capture group the pattern author wrote themselves: one
	// placeholder name, two captures.
	m := New()
	in := msg("order 7 pizzas")
	if !m.IsPatternValid(in, answerFor(in), `order (\d+) {item}`) {
		t.Fatal("expected match")
	}
	named, positional := m.Parameters(`order (\d+) {item}`)
	if named != nil {
		t.Fatalf("named = %v, want nil on count mismatch", named)
	}
	if want := []string{"7", "pizzas"}; !reflect.DeepEqual(positional, want) {
		t.Fatalf("positional = %v, want %v", positional, want)
	}
}

func TestParamNames(t *testing.T) {
	tests := []struct {
		pattern string
		want    []string
	}{
		{"call me {name}", []string{"name"}},
		{"deploy {app} to {env}", []string{"app", "env"}},
		{"no params", nil},
		{`ok{2} {name}`, []string{"name"}},
		{`{2,4}`, nil},
	}
	for _, tt := range tests {
		if got := ParamNames(tt.pattern); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ParamNames(%q) = %v, want %v", tt.pattern, got, tt.want)
		}
	}
}

func TestCompileIdempotentCaptureCount(t *testing.T) {
	re, err := Compile("call me {name}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if re.NumSubexp() != 1 {
		t.Fatalf("NumSubexp = %d, want 1", re.NumSubexp())
	}
}

func TestIsDriverValid(t *testing.T) {
	if !IsDriverValid("telegram", nil) {
		t.Fatal("empty allow list must permit every driver")
	}
	if !IsDriverValid("telegram", []string{"slack", "telegram"}) {
		t.Fatal("listed driver must be permitted")
	}
	if IsDriverValid("web", []string{"slack"}) {
		t.Fatal("unlisted driver must be rejected")
	}
}

func TestIsChannelValid(t *testing.T) {
	if !IsChannelValid("chat-1", "") {
		t.Fatal("empty constraint must permit every channel")
	}
	if !IsChannelValid("chat-1", "chat-1") {
		t.Fatal("matching channel must be permitted")
	}
	if IsChannelValid("chat-2", "chat-1") {
		t.Fatal("other channel must be rejected")
	}
}

func TestSentinelGetter(t *testing.T) {
	tests := []struct {
		pattern string
		getter  string
		ok      bool
	}{
		{ImagePattern, domain.GetterImages, true},
		{VideoPattern, domain.GetterVideos, true},
		{AudioPattern, domain.GetterAudio, true},
		{FilePattern, domain.GetterFiles, true},
		{LocationPattern, domain.GetterLocation, true},
		{ContactPattern, domain.GetterContact, true},
		{"call me {name}", "", false},
	}
	for _, tt := range tests {
		getter, ok := SentinelGetter(tt.pattern)
		if ok != tt.ok || getter != tt.getter {
			t.Fatalf("SentinelGetter(%q) = %q, %v; want %q, %v", tt.pattern, getter, ok, tt.getter, tt.ok)
		}
	}
}

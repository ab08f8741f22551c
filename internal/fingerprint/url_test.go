package fingerprint

import "testing"

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"tracking params stripped", "https://theloadstar.com/a?utm_source=twitter", "https://theloadstar.com/a"},
		{"fbclid stripped", "https://example.com/news/x?fbclid=abc123", "https://example.com/news/x"},
		{"scheme and host lowercased", "HTTPS://Example.COM/News", "https://example.com/News"},
		{"default port stripped", "https://example.com:443/a", "https://example.com/a"},
		{"non-default port kept", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"fragment stripped", "https://example.com/a#section", "https://example.com/a"},
		{"query sorted", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"trailing slash trimmed", "https://example.com/news/", "https://example.com/news"},
		{"root path kept", "https://example.com/", "https://example.com/"},
		{"mixed", "https://Example.com/a/?utm_campaign=x&z=9&gclid=1&a=0", "https://example.com/a?a=0&z=9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(tt.in)
			if err != nil {
				t.Fatalf("CanonicalURL(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalURLIdempotent(t *testing.T) {
	inputs := []string{
		"https://theloadstar.com/a?utm_source=twitter",
		"https://Example.com:443/News/?b=2&a=1#frag",
		"http://example.com:80/x/y/z/",
	}
	for _, in := range inputs {
		once, err := CanonicalURL(in)
		if err != nil {
			t.Fatalf("first pass %q: %v", in, err)
		}
		twice, err := CanonicalURL(once)
		if err != nil {
			t.Fatalf("second pass %q: %v", once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestCanonicalURLRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "/relative/path", "not a url at all\x7f://"} {
		if _, err := CanonicalURL(in); err == nil {
			t.Errorf("CanonicalURL(%q) succeeded, want error", in)
		}
	}
}

func TestDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.theloadstar.com/a", "theloadstar.com"},
		{"https://News.Example.org", "news.example.org"},
		{"garbage\x7f", ""},
	}
	for _, tt := range tests {
		if got := Domain(tt.in); got != tt.want {
			t.Errorf("Domain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

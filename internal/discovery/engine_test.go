package discovery

import "testing"

func TestIsBlockedDomain(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.facebook.com/somepage", true},
		{"https://m.youtube.com/watch", true},
		{"https://en.wikipedia.org/wiki/Shipping", true},
		{"https://theloadstar.com", false},
		{"https://notfacebook.company.example", false},
		{"garbage\x7f", true},
	}
	for _, tt := range tests {
		if got := isBlockedDomain(tt.url); got != tt.want {
			t.Errorf("isBlockedDomain(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestResolveResultHref(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Ftheloadstar.com%2F", "https://theloadstar.com/"},
		{"https://direct.example/page", "https://direct.example/page"},
		{"/relative/only", ""},
	}
	for _, tt := range tests {
		if got := resolveResultHref(tt.href); got != tt.want {
			t.Errorf("resolveResultHref(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestSiteRootOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/deep/path?q=1", "https://example.com"},
		{"ftp://example.com/x", ""},
		{"not-a-url", ""},
	}
	for _, tt := range tests {
		if got := siteRootOf(tt.in); got != tt.want {
			t.Errorf("siteRootOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAbsoluteURL(t *testing.T) {
	got := absoluteURL("https://seed.example/page", "/partners/news")
	if got != "https://seed.example/partners/news" {
		t.Fatalf("got %q", got)
	}
	if absoluteURL("https://seed.example", "javascript:void(0)") != "" {
		t.Fatal("non-http scheme should resolve to empty")
	}
}

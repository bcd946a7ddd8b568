package urlutil

import "testing"

func TestNormalizeURL_SpecExample(t *testing.T) {
	got, err := NormalizeURL("https://Ex.com:443/a/../b?utm_source=x&z=1#frag")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://ex.com/b/?z=1"
	if got != want {
		t.Errorf("NormalizeURL() = %q, want %q", got, want)
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	inputs := []string{
		"https://Ex.com:443/a/../b?utm_source=x&z=1#frag",
		"HTTP://WWW.Example.COM:80/docs/guide",
		"https://example.com/a/b/c.html",
	}
	for _, in := range inputs {
		first, err := NormalizeURL(in)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", in, err)
		}
		second, err := NormalizeURL(first)
		if err != nil {
			t.Fatalf("unexpected error re-normalizing %q: %v", first, err)
		}
		if first != second {
			t.Errorf("NormalizeURL not idempotent for %q: first=%q second=%q", in, first, second)
		}
	}
}

func TestNormalizeURL_StripsWWWAndTrailingSlash(t *testing.T) {
	got, err := NormalizeURL("http://www.example.com/docs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "http://example.com/docs/"
	if got != want {
		t.Errorf("NormalizeURL() = %q, want %q", got, want)
	}
}

func TestNormalizeURL_RejectsBadScheme(t *testing.T) {
	_, err := NormalizeURL("ftp://example.com/file")
	if err == nil {
		t.Fatal("expected error for non-http(s) scheme")
	}
}

func TestNormalizeURL_RejectsEmptyHost(t *testing.T) {
	_, err := NormalizeURL("https:///path")
	if err == nil {
		t.Fatal("expected error for empty host")
	}
}

func TestNormalizeURL_RejectsTooLong(t *testing.T) {
	long := "https://example.com/"
	for len(long) < 600 {
		long += "a"
	}
	_, err := NormalizeURL(long)
	if err == nil {
		t.Fatal("expected error for over-length url")
	}
}

func TestRegistrableDomain(t *testing.T) {
	got, err := RegistrableDomain("https://Docs.Example.COM/guide")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "docs.example.com" {
		t.Errorf("RegistrableDomain() = %q, want docs.example.com", got)
	}
}

func TestHasMediaExtension(t *testing.T) {
	cases := map[string]bool{
		"https://example.com/file.pdf":  true,
		"https://example.com/image.PNG": true,
		"https://example.com/page.html": false,
		"https://example.com/docs":      false,
	}
	for in, want := range cases {
		if got := HasMediaExtension(in); got != want {
			t.Errorf("HasMediaExtension(%q) = %v, want %v", in, got, want)
		}
	}
}

package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// MaxNormalizedURLLength is the maximum total length of a normalized URL
// before it is rejected as invalid.
const MaxNormalizedURLLength = 500

// trackingParams is the closed set of query parameters stripped during
// normalization because they carry no addressing information.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"fbclid": {}, "gclid": {}, "msclkid": {}, "mc_cid": {}, "mc_eid": {},
	"_ga": {}, "_gid": {}, "ref": {}, "referrer": {},
}

// InvalidURLError is returned by NormalizeURL when the input cannot be
// reduced to a valid canonical form.
type InvalidURLError struct {
	Raw    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid url %q: %s", e.Raw, e.Reason)
}

// NormalizeURL canonicalizes a raw URL per the normalizer contract:
// lowercase scheme/host, strip default ports, remove the fragment,
// percent-decode then re-encode the path, resolve "." and ".." segments,
// append a trailing "/" to extensionless paths, drop tracking query
// parameters, alphabetize the remainder, and drop a leading "www.".
//
// NormalizeURL is pure, deterministic, and idempotent:
// NormalizeURL(NormalizeURL(u)) == NormalizeURL(u).
func NormalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", &InvalidURLError{Raw: raw, Reason: "unparseable"}
	}

	scheme := lowerASCII(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", &InvalidURLError{Raw: raw, Reason: "scheme must be http or https"}
	}

	host := lowerASCII(parsed.Hostname())
	if host == "" {
		return "", &InvalidURLError{Raw: raw, Reason: "empty host"}
	}
	host = strings.TrimPrefix(host, "www.")

	if port := parsed.Port(); port != "" {
		if !((scheme == "http" && port == "80") || (scheme == "https" && port == "443")) {
			host = host + ":" + port
		}
	}

	decodedPath, err := url.PathUnescape(parsed.EscapedPath())
	if err != nil {
		return "", &InvalidURLError{Raw: raw, Reason: "malformed path escaping"}
	}
	cleanPath := resolveDotSegments(decodedPath)
	if cleanPath == "" {
		cleanPath = "/"
	}
	if !strings.HasPrefix(cleanPath, "/") {
		cleanPath = "/" + cleanPath
	}
	if path.Ext(cleanPath) == "" && !strings.HasSuffix(cleanPath, "/") {
		cleanPath = cleanPath + "/"
	}
	encodedPath := (&url.URL{Path: cleanPath}).EscapedPath()

	query := filterAndSortQuery(parsed.Query())

	result := &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     encodedPath,
		RawQuery: query,
	}
	out := result.String()
	if len(out) > MaxNormalizedURLLength {
		return "", &InvalidURLError{Raw: raw, Reason: "exceeds maximum length"}
	}
	return out, nil
}

// resolveDotSegments resolves "." and ".." path segments per RFC 3986 §5.2.4.
func resolveDotSegments(p string) string {
	if p == "" {
		return "/"
	}
	trailingSlash := strings.HasSuffix(p, "/")
	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	joined := "/" + strings.Join(out, "/")
	if trailingSlash && joined != "/" {
		joined += "/"
	}
	return joined
}

// filterAndSortQuery drops tracking parameters and alphabetizes the rest.
func filterAndSortQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if _, tracked := trackingParams[lowerASCII(k)]; tracked {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := url.Values{}
	for _, k := range keys {
		vals := append([]string(nil), values[k]...)
		sort.Strings(vals)
		out[k] = vals
	}
	return out.Encode()
}

// RegistrableDomain returns the lowercased host of a URL as the registrable
// domain. Subdomain stripping is intentionally not performed (spec C1).
func RegistrableDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", &InvalidURLError{Raw: rawURL, Reason: "unparseable"}
	}
	host := lowerASCII(parsed.Hostname())
	if host == "" {
		return "", &InvalidURLError{Raw: rawURL, Reason: "empty host"}
	}
	return host, nil
}

// MediaExtensions is the closed set of file extensions dropped during link
// discovery (spec C8 step 3).
var MediaExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".pdf": {}, ".zip": {},
	".exe": {}, ".mp4": {}, ".mp3": {}, ".avi": {}, ".doc": {}, ".docx": {},
	".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
}

// HasMediaExtension reports whether the URL path ends in a media/binary
// extension that the fetch pipeline refuses to traverse.
func HasMediaExtension(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := lowerASCII(path.Ext(parsed.Path))
	_, ok := MediaExtensions[ext]
	return ok
}

// ResolveReference resolves a possibly-relative href against a base URL,
// returning the absolute URL string. Non-http(s) schemes (mailto:, javascript:,
// tel:, etc.) are reported via ok=false.
func ResolveReference(base *url.URL, href string) (resolved string, ok bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	scheme := lowerASCII(abs.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	return abs.String(), true
}

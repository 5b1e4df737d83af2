// Package validator checks untrusted filenames and URLs before they reach the
// filesystem or a subprocess.
package validator

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode"

	"DropFM/core/pipeline"
	"DropFM/model"
)

const MaxURLLength = 200

// characters and sequences a downstream tool could interpret if it shells out
var forbiddenURLChars = []string{";", "|", "`", "$", "&", "\n", "\r"}
var forbiddenURLSeqs = []string{"&&", "||"}

// RejectedError describes why an input was refused.
type RejectedError struct {
	Field  string
	Value  string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Is makes every rejection match pipeline.ErrValidation.
func (e *RejectedError) Is(target error) bool {
	return target == pipeline.ErrValidation
}

func reject(field, value, format string, args ...interface{}) error {
	return &RejectedError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}

// Rules is the allow-list configuration.
type Rules struct {
	AllowedExtensions []string // lower case, without the dot
	YouTubeDomains    []string
	SpotifyDomains    []string
}

// Validator applies Rules. It is safe for concurrent use.
type Validator struct {
	extensions map[string]struct{}
	domains    map[model.SourceKind][]string
}

func New(rules Rules) *Validator {
	v := &Validator{
		extensions: make(map[string]struct{}, len(rules.AllowedExtensions)),
		domains: map[model.SourceKind][]string{
			model.SourceYouTube: normalizeDomains(rules.YouTubeDomains),
			model.SourceSpotify: normalizeDomains(rules.SpotifyDomains),
		},
	}
	for _, ext := range rules.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			v.extensions[ext] = struct{}{}
		}
	}
	return v
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Validate dispatches on kind: a filename for file uploads, a URL otherwise.
func (v *Validator) Validate(kind model.SourceKind, source string) error {
	switch kind {
	case model.SourceFile:
		return v.ValidateFilename(source)
	case model.SourceYouTube, model.SourceSpotify:
		return v.ValidateURL(kind, source)
	default:
		return reject("source kind", string(kind), "unsupported")
	}
}

// ValidateFilename rejects traversal, separators, control characters, hidden
// names and extensions outside the allow-list.
func (v *Validator) ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return reject("filename", "", "empty name")
	}
	if strings.Contains(name, "..") {
		return reject("filename", name, "contains \"..\"")
	}
	if strings.ContainsAny(name, `/\`) {
		return reject("filename", name, "contains a path separator")
	}
	// ".mp3" has no stem; staging skips hidden entries
	if strings.HasPrefix(name, ".") {
		return reject("filename", name, "hidden file name")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return reject("filename", name, "contains a control character")
		}
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return reject("filename", name, "missing file extension")
	}
	if _, ok := v.extensions[ext]; !ok {
		return reject("filename", name, "extension .%s is not allowed", ext)
	}
	return nil
}

// ValidateURL accepts only https URLs on the provider's domains.
func (v *Validator) ValidateURL(kind model.SourceKind, raw string) error {
	domains, ok := v.domains[kind]
	if !ok {
		return reject("source kind", string(kind), "not a URL source")
	}
	field := string(kind) + " url"

	if raw == "" {
		return reject(field, "", "empty URL")
	}
	if len(raw) > MaxURLLength {
		return reject(field, "", "longer than %d characters", MaxURLLength)
	}
	for _, seq := range forbiddenURLSeqs {
		if strings.Contains(raw, seq) {
			return reject(field, raw, "contains forbidden sequence %q", seq)
		}
	}
	for _, c := range forbiddenURLChars {
		if strings.Contains(raw, c) {
			return reject(field, raw, "contains forbidden character %q", c)
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return reject(field, raw, "malformed URL")
	}
	if u.Scheme != "https" {
		return reject(field, raw, "scheme must be https")
	}
	if u.User != nil {
		return reject(field, raw, "credentials are not allowed")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return reject(field, raw, "missing host")
	}
	if !hostAllowed(host, domains) {
		return reject(field, raw, "host %s is not an allowed %s domain", host, kind)
	}
	return nil
}

// hostAllowed matches an exact domain or any subdomain of it.
func hostAllowed(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

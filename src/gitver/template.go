package gitver

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ResolveTemplate expands version template variables in a string.
// Works on any part of an image reference, a chart version, or a
// bump target.
//
// Supported templates:
//
//	{version}     full version, including prerelease and dev suffix
//	{base}        semver base without prerelease
//	{major} {minor} {patch} {prerelease}
//	{branch}      current branch, sanitized for image tags
//	{sha}         short HEAD hash (7 chars)
//	{sha:N}       HEAD hash truncated to N chars
//	{env:NAME}    environment variable
//	{date}        "2026-08-31" (UTC)
//	{date:LAYOUT} custom Go time layout
//	{datetime}    RFC3339 timestamp
//	{timestamp}   unix epoch seconds
//
// Literals pass through as-is, so "latest" stays "latest" and
// templates compose freely: "{branch}-{sha:10}", "v{base}".
func ResolveTemplate(tmpl string, v *VersionInfo) string {
	if v == nil {
		return tmpl
	}

	s := tmpl

	// Parameterized templates carry colons and must resolve before
	// the plain replacements.
	s = resolveEnvVars(s)
	s = resolveSHAWidth(s, v.SHA)
	s = resolveTime(s, time.Now().UTC())

	s = strings.ReplaceAll(s, "{version}", v.Version)
	s = strings.ReplaceAll(s, "{base}", v.Base)
	s = strings.ReplaceAll(s, "{major}", v.Major)
	s = strings.ReplaceAll(s, "{minor}", v.Minor)
	s = strings.ReplaceAll(s, "{patch}", v.Patch)
	s = strings.ReplaceAll(s, "{prerelease}", v.Prerelease)
	s = strings.ReplaceAll(s, "{branch}", sanitizeTag(v.Branch))
	s = strings.ReplaceAll(s, "{sha}", truncate(v.SHA, 7))

	return s
}

// ResolveTags expands a list of tag templates.
func ResolveTags(templates []string, v *VersionInfo) []string {
	if v == nil {
		return templates
	}
	tags := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		tags = append(tags, ResolveTemplate(tmpl, v))
	}
	return tags
}

func resolveEnvVars(s string) string {
	for {
		start := strings.Index(s, "{env:")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			return s
		}
		end += start
		s = s[:start] + os.Getenv(s[start+5:end]) + s[end+1:]
	}
}

func resolveSHAWidth(s, sha string) string {
	for {
		start := strings.Index(s, "{sha:")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			return s
		}
		end += start
		width, err := strconv.Atoi(s[start+5 : end])
		if err != nil || width <= 0 {
			width = 7
		}
		s = s[:start] + truncate(sha, width) + s[end+1:]
	}
}

// resolveTime replaces time templates. {date:LAYOUT} and {datetime}
// resolve before plain {date} because {date} is a prefix of both.
func resolveTime(s string, now time.Time) string {
	s = resolveDateFormat(s, now)
	s = strings.ReplaceAll(s, "{datetime}", now.Format(time.RFC3339))
	s = strings.ReplaceAll(s, "{timestamp}", strconv.FormatInt(now.Unix(), 10))
	s = strings.ReplaceAll(s, "{date}", now.Format("2006-01-02"))
	return s
}

func resolveDateFormat(s string, now time.Time) string {
	for {
		start := strings.Index(s, "{date:")
		if start == -1 {
			return s
		}
		if strings.HasPrefix(s[start:], "{datetime}") {
			return s[:start+10] + resolveDateFormat(s[start+10:], now)
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			return s
		}
		end += start
		layout := s[start+6 : end]
		if layout == "" {
			return s
		}
		s = s[:start] + now.Format(layout) + s[end+1:]
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// sanitizeTag replaces characters not allowed in image tags.
func sanitizeTag(s string) string {
	return strings.NewReplacer("/", "-", " ", "-").Replace(s)
}

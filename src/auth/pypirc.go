package auth

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/conveyorbuild/conveyor/src/settings"
)

// configparser writes the index-servers list as indented
// continuation lines under a bare key; the default ini parser
// rejects that form.
var pypircLoadOptions = ini.LoadOptions{AllowPythonMultilineValues: true}

// MergePypirc injects an index-server section for the registry into a
// .pypirc document. Other index servers keep their sections; the
// [distutils] index-servers list is extended rather than replaced.
func MergePypirc(existing []byte, reg *settings.Registry) ([]byte, error) {
	var (
		cfg *ini.File
		err error
	)
	if len(existing) > 0 {
		cfg, err = ini.LoadSources(pypircLoadOptions, existing)
		if err != nil {
			return nil, fmt.Errorf("parse .pypirc: %w", err)
		}
	} else {
		cfg = ini.Empty(pypircLoadOptions)
	}

	dist := cfg.Section("distutils")
	servers := splitServers(dist.Key("index-servers").String())
	if !containsString(servers, reg.Name) {
		servers = append(servers, reg.Name)
	}
	dist.Key("index-servers").SetValue("\n" + strings.Join(servers, "\n"))

	sec := cfg.Section(reg.Name)
	sec.Key("repository").SetValue(reg.URL)
	if reg.ReadCredentials != nil {
		sec.Key("username").SetValue(reg.ReadCredentials.Username)
		sec.Key("password").SetValue(reg.ReadCredentials.Password)
	} else if reg.PublishToken != "" {
		// PyPI token auth convention.
		sec.Key("username").SetValue("__token__")
		sec.Key("password").SetValue(reg.PublishToken)
	}

	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize .pypirc: %w", err)
	}
	return buf.Bytes(), nil
}

func splitServers(raw string) []string {
	var out []string
	for _, f := range strings.Fields(raw) {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Package audit scans configuration files for leftover credentials
// after a build run. Every file a credential injection touched should
// come back clean once its patch is restored; a hit here means a
// restore did not do its job or a tool persisted a secret on its own.
package audit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Finding is one suspected credential left on disk.
type Finding struct {
	File        string
	RuleID      string
	Description string
	Line        int
}

func (f Finding) String() string {
	return fmt.Sprintf("%s:%d: %s (%s)", f.File, f.Line, f.Description, f.RuleID)
}

// Scanner checks files for secret-looking content.
type Scanner struct {
	detector *detect.Detector
}

// NewScanner builds a scanner with the default detection rules.
func NewScanner() (*Scanner, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}
	return &Scanner{detector: d}, nil
}

// ScanFiles scans each path and collects findings. Files that no
// longer exist are skipped; a restored injection removes files it
// created.
func (s *Scanner) ScanFiles(ctx context.Context, paths []string) ([]Finding, error) {
	var findings []Finding
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return findings, err
		}

		for _, hit := range s.detector.DetectBytes(data) {
			findings = append(findings, Finding{
				File:        path,
				RuleID:      hit.RuleID,
				Description: hit.Description,
				Line:        hit.StartLine + 1, // gitleaks is 0-indexed
			})
		}
	}
	return findings, nil
}

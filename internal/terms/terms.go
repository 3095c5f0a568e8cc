// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

// Package terms serves the terms-and-conditions document presented during
// first login. Documents are Markdown files in a configured folder; the
// filename stem is the version, and the lexicographically greatest
// filename is the current version (v2.md > v1.md).
package terms

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/russross/blackfriday/v2"
)

// ErrNoDocuments indicates the terms folder holds no Markdown documents.
var ErrNoDocuments = errors.New("no terms documents found")

// Document is one rendered terms document.
type Document struct {
	// Headline is the text of the document's first level-1 heading.
	Headline string `json:"headline"`

	// Terms is the document body rendered to HTML.
	Terms string `json:"terms"`

	// Version is the document's filename stem, e.g. "v2".
	Version string `json:"version"`
}

// Service loads terms documents from a folder.
type Service struct {
	folder string
}

// NewService creates a terms service reading from the given folder.
func NewService(folder string) *Service {
	return &Service{folder: folder}
}

// Latest returns the current terms document.
func (s *Service) Latest() (*Document, error) {
	entries, err := os.ReadDir(s.folder)
	if err != nil {
		return nil, fmt.Errorf("reading terms folder: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return nil, ErrNoDocuments
	}
	sort.Strings(names)

	name := names[len(names)-1]
	raw, err := os.ReadFile(filepath.Join(s.folder, name))
	if err != nil {
		return nil, fmt.Errorf("reading terms document: %w", err)
	}

	return &Document{
		Headline: headline(raw),
		Terms:    string(blackfriday.Run(raw)),
		Version:  strings.TrimSuffix(name, ".md"),
	}, nil
}

// headline extracts the text of the first level-1 heading, if any.
func headline(raw []byte) string {
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(after)
		}
	}
	return ""
}

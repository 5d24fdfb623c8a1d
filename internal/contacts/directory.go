// Package contacts resolves sender addresses against a contact directory
// and the persisted block-list.
package contacts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"smsgate/internal/domain"
	"smsgate/internal/phone"

	"gopkg.in/yaml.v3"
)

// Snapshot is an immutable view of the directory keyed by phone.Comparable.
// A nil *Snapshot behaves as an empty directory.
type Snapshot struct {
	byKey    map[string]domain.Contact
	contacts int
}

// NewSnapshot indexes contacts by every number they list. When two contacts
// share a number the first one wins.
func NewSnapshot(list []domain.Contact) *Snapshot {
	s := &Snapshot{byKey: make(map[string]domain.Contact)}
	for _, c := range list {
		indexed := false
		for _, n := range c.Numbers {
			key := phone.Comparable(n)
			if key == "" {
				continue
			}
			if _, dup := s.byKey[key]; dup {
				continue
			}
			s.byKey[key] = c
			indexed = true
		}
		if indexed {
			s.contacts++
		}
	}
	return s
}

// Lookup finds the contact owning address.
func (s *Snapshot) Lookup(address string) (domain.Contact, bool) {
	if s == nil {
		return domain.Contact{}, false
	}
	key := phone.Comparable(address)
	if key == "" {
		return domain.Contact{}, false
	}
	c, ok := s.byKey[key]
	return c, ok
}

// Len returns the number of contacts with at least one usable number.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return s.contacts
}

type directoryFile struct {
	Contacts []domain.Contact `yaml:"contacts"`
}

// LoadDirectory parses a YAML directory file. Relative photo paths are
// resolved against the file's own directory.
//
//	contacts:
//	  - name: Alice
//	    photo: avatars/alice.jpg
//	    numbers: ["+1 555 123 4567"]
func LoadDirectory(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contact directory: %w", err)
	}

	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse contact directory %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range f.Contacts {
		c := &f.Contacts[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.PhotoRef != "" && !filepath.IsAbs(c.PhotoRef) {
			c.PhotoRef = filepath.Join(base, c.PhotoRef)
		}
	}
	return NewSnapshot(f.Contacts), nil
}

// Directory holds the current snapshot and swaps it atomically on Reload,
// so readers never see a half-loaded directory.
type Directory struct {
	path   string
	logger *slog.Logger
	snap   atomic.Pointer[Snapshot]
}

// NewDirectory loads path. An empty path or a missing file yields an empty
// directory; a malformed file is an error.
func NewDirectory(path string, logger *slog.Logger) (*Directory, error) {
	d := &Directory{path: path, logger: logger}
	d.snap.Store(NewSnapshot(nil))
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Snapshot returns the current read-only view.
func (d *Directory) Snapshot() *Snapshot {
	return d.snap.Load()
}

// Reload re-reads the directory file. On error the previous snapshot is kept.
func (d *Directory) Reload() error {
	if d.path == "" {
		d.logger.Debug("no contact directory configured")
		return nil
	}
	snap, err := LoadDirectory(d.path)
	if errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("contact directory not found, using empty directory", "path", d.path)
		d.snap.Store(NewSnapshot(nil))
		return nil
	}
	if err != nil {
		return err
	}
	d.snap.Store(snap)
	d.logger.Info("contact directory loaded", "path", d.path, "contacts", snap.Len())
	return nil
}

// Path returns the configured directory file.
func (d *Directory) Path() string { return d.path }

package oui

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultCacheSize = 1024

// Store maps normalized 3-octet MAC prefixes to vendor names, loaded from an
// IEEE registry CSV (columns "Assignment" and "Organization Name"). The file
// is read lazily on the first lookup and can be reloaded on demand.
type Store struct {
	path string

	mu       sync.RWMutex
	prefixes map[string]string
	loaded   bool

	cache *Cache
}

// NewStore creates a vendor store backed by the CSV file at path. The file is
// not touched until the first Lookup or an explicit Reload.
func NewStore(path string) *Store {
	return &Store{
		path:  path,
		cache: NewCache(defaultCacheSize),
	}
}

// Lookup resolves the vendor for a BSSID or full MAC address.
// Returns ErrVendorNotFound when the prefix is not registered.
func (s *Store) Lookup(mac string) (string, error) {
	if mac == "" {
		return "", ErrEmptyMAC
	}

	if vendor, ok := s.cache.Get(mac); ok {
		return vendor, nil
	}

	prefix := NormalizePrefix(mac)
	if len(prefix) != 8 {
		return "", ErrInvalidMAC
	}

	if err := s.ensureLoaded(); err != nil {
		return "", err
	}

	s.mu.RLock()
	vendor, ok := s.prefixes[prefix]
	s.mu.RUnlock()
	if !ok {
		return "", ErrVendorNotFound
	}

	s.cache.Set(mac, vendor)
	return vendor, nil
}

// Reload re-reads the CSV file and swaps the mapping. The lookup cache is
// cleared so stale vendors are not served.
func (s *Store) Reload() error {
	m, err := s.loadFile()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.prefixes = m
	s.loaded = true
	s.mu.Unlock()

	s.cache.Clear()
	slog.Info("oui registry loaded", "path", s.path, "prefixes", len(m))
	return nil
}

// Len returns the number of loaded prefixes. Zero before the first load.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prefixes)
}

func (s *Store) ensureLoaded() error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Reload()
}

func (s *Store) loadFile() (map[string]string, error) {
	if s.path == "" {
		return nil, ErrNoSourceFile
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, &LoadError{Path: s.path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, &LoadError{Path: s.path, Err: err}
	}

	assignIdx, orgIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case "Assignment":
			assignIdx = i
		case "Organization Name":
			orgIdx = i
		}
	}
	if assignIdx < 0 || orgIdx < 0 {
		return nil, &LoadError{Path: s.path, Err: fmt.Errorf("missing Assignment/Organization Name columns")}
	}

	m := make(map[string]string)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &LoadError{Path: s.path, Err: err}
		}
		if len(record) <= assignIdx || len(record) <= orgIdx {
			continue
		}
		prefix := NormalizePrefix(record[assignIdx])
		vendor := strings.TrimSpace(record[orgIdx])
		if len(prefix) != 8 || vendor == "" {
			continue
		}
		m[prefix] = vendor
	}
	return m, nil
}

// NormalizePrefix converts a MAC or OUI assignment to the canonical
// uppercase colon-separated 3-octet form (XX:XX:XX).
func NormalizePrefix(mac string) string {
	mac = strings.ReplaceAll(mac, "-", ":")
	mac = strings.ReplaceAll(mac, ".", ":")
	mac = strings.ToUpper(strings.TrimSpace(mac))

	if len(mac) >= 8 && mac[2] == ':' && mac[5] == ':' {
		return mac[:8]
	}

	if len(mac) >= 6 && !strings.Contains(mac[:6], ":") {
		return fmt.Sprintf("%s:%s:%s", mac[0:2], mac[2:4], mac[4:6])
	}

	return mac
}

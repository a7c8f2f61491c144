package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ──────────────────────────────────────────────
// FileStore — definition loading from disk
// ──────────────────────────────────────────────

// FileStore loads character cards (*.json) and framework definitions
// (*.yaml, *.yml) from directories. Definitions are read-only records;
// a malformed file is reported per file and never aborts the load.
type FileStore struct {
	CharacterDir string
	FrameworkDir string

	// Decoder defaults to JSONCardDecoder. Swap for embedded-metadata
	// card variants.
	Decoder CardDecoder
}

// NewFileStore creates a FileStore over the given directories.
func NewFileStore(characterDir, frameworkDir string) *FileStore {
	return &FileStore{
		CharacterDir: characterDir,
		FrameworkDir: frameworkDir,
		Decoder:      JSONCardDecoder{},
	}
}

// LoadCharacters decodes every *.json card in CharacterDir.
// Returns the characters keyed by id plus per-file errors.
func (s *FileStore) LoadCharacters() (map[string]*Character, []error) {
	entries, err := os.ReadDir(s.CharacterDir)
	if err != nil {
		return nil, []error{fmt.Errorf("read character dir: %w", err)}
	}

	chars := map[string]*Character{}
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.CharacterDir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		c, err := s.Decoder.DecodeCard(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		if c.ID == "" {
			c.ID = strings.TrimSuffix(e.Name(), ".json")
		}
		chars[c.ID] = c
	}
	return chars, errs
}

// LoadFrameworks decodes every *.yaml/*.yml definition in FrameworkDir.
func (s *FileStore) LoadFrameworks() (map[string]*Framework, []error) {
	entries, err := os.ReadDir(s.FrameworkDir)
	if err != nil {
		return nil, []error{fmt.Errorf("read framework dir: %w", err)}
	}

	fws := map[string]*Framework{}
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.FrameworkDir, name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		f, err := DecodeFramework(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		fws[f.ID] = f
	}
	return fws, errs
}

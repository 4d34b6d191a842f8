package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"stridecoach/internal/logging"
)

// Store is the loaded corpus: every parsed document, indexed by domain. It is
// immutable after LoadDir returns.
type Store struct {
	philosophies []*Philosophy
	structures   []*Structure
	templates    []Template
	byID         map[string]*Document
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Store{}
)

// LoadDir parses every .md file under dir (recursively) into a Store. Results
// are cached process-wide per directory; the corpus is read-only so a second
// load of the same dir returns the first Store.
func LoadDir(dir string) (*Store, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if s, ok := cache[dir]; ok {
		return s, nil
	}

	logger := logging.Named("corpus")
	s := &Store{byID: make(map[string]*Document)}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc, err := Parse(string(content))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, dup := s.byID[doc.Metadata.ID]; dup {
			return fmt.Errorf("%s: duplicate document id %s", path, doc.Metadata.ID)
		}
		s.byID[doc.Metadata.ID] = doc
		switch {
		case doc.Philosophy != nil:
			s.philosophies = append(s.philosophies, doc.Philosophy)
		case doc.Structure != nil:
			s.structures = append(s.structures, doc.Structure)
		case len(doc.Templates) > 0:
			s.templates = append(s.templates, doc.Templates...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(s.byID) == 0 {
		return nil, fmt.Errorf("no corpus documents found under %s", dir)
	}

	// Stable ordering makes every downstream selection deterministic.
	sort.Slice(s.philosophies, func(i, j int) bool { return s.philosophies[i].Metadata.ID < s.philosophies[j].Metadata.ID })
	sort.Slice(s.structures, func(i, j int) bool { return s.structures[i].Metadata.ID < s.structures[j].Metadata.ID })
	sort.Slice(s.templates, func(i, j int) bool { return s.templates[i].TemplateID < s.templates[j].TemplateID })

	logger.Info("corpus loaded",
		zap.String("dir", dir),
		zap.Int("philosophies", len(s.philosophies)),
		zap.Int("structures", len(s.structures)),
		zap.Int("templates", len(s.templates)))

	cache[dir] = s
	return s, nil
}

// Get returns a document by id.
func (s *Store) Get(id string) (*Document, bool) {
	doc, ok := s.byID[id]
	return doc, ok
}

// Philosophies returns every philosophy, ordered by id.
func (s *Store) Philosophies() []*Philosophy { return s.philosophies }

// Templates returns every session template, ordered by document id.
func (s *Store) Templates() []Template { return s.templates }

// PhilosophiesFor returns philosophies applicable to a race type, ordered by
// id.
func (s *Store) PhilosophiesFor(raceType string) []*Philosophy {
	var out []*Philosophy
	for _, p := range s.philosophies {
		if p.Metadata.MatchesRaceType(raceType) {
			out = append(out, p)
		}
	}
	return out
}

// StructuresFor returns week structures for a philosophy and phase that admit
// the given days-to-race, ordered by id. Zero range bounds mean unbounded.
func (s *Store) StructuresFor(philosophyID, phase string, daysToRace int) []*Structure {
	var out []*Structure
	for _, st := range s.structures {
		m := &st.Metadata
		if m.PhilosophyID != "" && m.PhilosophyID != philosophyID {
			continue
		}
		if m.Phase != "" && m.Phase != phase {
			continue
		}
		if m.DaysToRaceMin != 0 && daysToRace < m.DaysToRaceMin {
			continue
		}
		if m.DaysToRaceMax != 0 && daysToRace > m.DaysToRaceMax {
			continue
		}
		out = append(out, st)
	}
	return out
}

// TemplatesFor returns session templates for a philosophy, session type, and
// phase, ordered by template id. Empty philosophy_id or phase on a template
// means it applies everywhere.
func (s *Store) TemplatesFor(philosophyID, sessionType, phase string) []Template {
	var out []Template
	for _, t := range s.templates {
		if t.SessionType != sessionType {
			continue
		}
		if t.Metadata.PhilosophyID != "" && t.Metadata.PhilosophyID != philosophyID {
			continue
		}
		if t.Metadata.Phase != "" && t.Metadata.Phase != phase {
			continue
		}
		out = append(out, t)
	}
	return out
}

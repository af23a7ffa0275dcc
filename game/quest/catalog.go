package quest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog is the immutable registry of a curriculum's quests.
type Catalog struct {
	rules   Rules
	quests  []*Quest
	byID    map[string]*Quest
	aliases map[string]string // normalised legacy name -> quest id
}

// LoadCatalog reads a curriculum YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curriculum %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes curriculum YAML. Rules missing from the document keep
// their defaults.
func ParseCatalog(data []byte) (*Catalog, error) {
	c := Curriculum{Rules: DefaultRules()}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return NewCatalog(c)
}

// NewCatalog validates a curriculum and indexes it.
func NewCatalog(c Curriculum) (*Catalog, error) {
	cat := &Catalog{
		rules:   c.Rules,
		byID:    make(map[string]*Quest, len(c.Quests)),
		aliases: make(map[string]string),
	}

	for i := range c.Quests {
		q := c.Quests[i]
		if q.ID == "" {
			return nil, fmt.Errorf("%w: quest %d has no id", ErrInvalidCatalog, i)
		}
		if _, dup := cat.byID[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate quest id %q", ErrInvalidCatalog, q.ID)
		}
		if q.HasQuiz() {
			for j, question := range q.Quiz.Questions {
				if len(question.Options) == 0 {
					return nil, fmt.Errorf("%w: quest %q question %d has no options", ErrInvalidCatalog, q.ID, j)
				}
				if question.Correct < 0 || question.Correct >= len(question.Options) {
					return nil, fmt.Errorf("%w: quest %q question %d answer %d out of range", ErrInvalidCatalog, q.ID, j, question.Correct)
				}
			}
		}
		cat.quests = append(cat.quests, &q)
		cat.byID[q.ID] = &q
	}

	// Quest names resolve like legacy aliases; explicit aliases win.
	for _, q := range cat.quests {
		if q.Name != "" {
			cat.aliases[normalizeName(q.Name)] = q.ID
		}
	}
	for legacy, id := range c.Aliases {
		if _, ok := cat.byID[id]; !ok {
			return nil, fmt.Errorf("%w: alias %q points at unknown quest %q", ErrInvalidCatalog, legacy, id)
		}
		cat.aliases[normalizeName(legacy)] = id
	}

	return cat, nil
}

// normalizeName reduces a legacy quest name to its lookup key: NFKC,
// case-folded, all whitespace removed.
func normalizeName(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), "")
}

// Rules returns the curriculum's stage amounts.
func (c *Catalog) Rules() Rules { return c.rules }

// Len returns the number of quests.
func (c *Catalog) Len() int { return len(c.quests) }

// Quests returns the quests in file order.
func (c *Catalog) Quests() []*Quest {
	out := make([]*Quest, len(c.quests))
	copy(out, c.quests)
	return out
}

// Get returns a quest by its exact id.
func (c *Catalog) Get(id string) (*Quest, bool) {
	q, ok := c.byID[id]
	return q, ok
}

// Resolve maps an id or a legacy name to a quest id.
func (c *Catalog) Resolve(alias string) (string, bool) {
	if _, ok := c.byID[alias]; ok {
		return alias, true
	}
	id, ok := c.aliases[normalizeName(alias)]
	return id, ok
}

// Lookup returns the quest an id or legacy name refers to.
func (c *Catalog) Lookup(idOrName string) (*Quest, bool) {
	id, ok := c.Resolve(idOrName)
	if !ok {
		return nil, false
	}
	return c.byID[id], true
}

// UnknownPrerequisites lists, per quest id, the prerequisite aliases that
// match no quest.
func (c *Catalog) UnknownPrerequisites() map[string][]string {
	out := make(map[string][]string)
	for _, q := range c.quests {
		for _, alias := range q.Prerequisites {
			if _, ok := c.Resolve(alias); !ok {
				out[q.ID] = append(out[q.ID], alias)
			}
		}
	}
	return out
}

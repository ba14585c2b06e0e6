// Package rotation holds the cyclic (region, category) query order.
package rotation

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pair is one query dimension combination against the news provider.
type Pair struct {
	Region   string `yaml:"region"`
	Category string `yaml:"category"`
}

func (p Pair) String() string {
	return p.Region + "/" + p.Category
}

// Default is the built-in rotation: seven US categories, then top
// stories for South Africa, Nigeria and Kenya.
func Default() []Pair {
	return []Pair{
		{Region: "us", Category: "top"},
		{Region: "us", Category: "business"},
		{Region: "us", Category: "entertainment"},
		{Region: "us", Category: "health"},
		{Region: "us", Category: "science"},
		{Region: "us", Category: "sports"},
		{Region: "us", Category: "technology"},
		{Region: "za", Category: "top"},
		{Region: "ng", Category: "top"},
		{Region: "ke", Category: "top"},
	}
}

// Entry is one pair in a rotation file, optionally with the RSS feeds
// that serve it.
type Entry struct {
	Region   string   `yaml:"region"`
	Category string   `yaml:"category"`
	Feeds    []string `yaml:"feeds"`
}

// File is the YAML rotation config:
//
//	pairs:
//	  - region: us
//	    category: top
//	    feeds:
//	      - https://...
type File struct {
	Entries []Entry `yaml:"pairs"`
}

// LoadFile reads a rotation file from path.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rf File
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("decode rotation file %s: %w", path, err)
	}
	for i, e := range rf.Entries {
		if e.Region == "" || e.Category == "" {
			return nil, fmt.Errorf("rotation file %s: entry %d needs region and category", path, i)
		}
	}
	if len(rf.Entries) == 0 {
		return nil, fmt.Errorf("rotation file %s: no pairs", path)
	}
	return &rf, nil
}

// Pairs returns the entries in file order.
func (f *File) Pairs() []Pair {
	out := make([]Pair, 0, len(f.Entries))
	for _, e := range f.Entries {
		out = append(out, Pair{Region: e.Region, Category: e.Category})
	}
	return out
}

// Feeds maps each pair to its feed URLs. Repeated pairs are merged in file order.
func (f *File) Feeds() map[Pair][]string {
	out := make(map[Pair][]string, len(f.Entries))
	for _, e := range f.Entries {
		p := Pair{Region: e.Region, Category: e.Category}
		out[p] = append(out[p], e.Feeds...)
	}
	return out
}

var ErrEmpty = errors.New("rotation: no pairs")

// Cursor walks a fixed, cyclic sequence of pairs. It is not safe for
// concurrent use; the owner serializes access.
type Cursor struct {
	pairs []Pair
	pos   int
}

func NewCursor(pairs []Pair) (*Cursor, error) {
	if len(pairs) == 0 {
		return nil, ErrEmpty
	}
	cp := make([]Pair, len(pairs))
	copy(cp, pairs)
	return &Cursor{pairs: cp}, nil
}

// Next returns the pair at the current position and advances by one,
// wrapping at the end. The position moves on every call whatever the
// caller then does with the pair.
func (c *Cursor) Next() Pair {
	p := c.pairs[c.pos]
	c.pos = (c.pos + 1) % len(c.pairs)
	return p
}

// Position is the index of the pair the next call to Next returns.
func (c *Cursor) Position() int { return c.pos }

func (c *Cursor) Len() int { return len(c.pairs) }

// Seek moves the cursor to i mod Len.
func (c *Cursor) Seek(i int) {
	n := len(c.pairs)
	c.pos = ((i % n) + n) % n
}

// Pairs returns a copy of the sequence.
func (c *Cursor) Pairs() []Pair {
	cp := make([]Pair, len(c.pairs))
	copy(cp, c.pairs)
	return cp
}

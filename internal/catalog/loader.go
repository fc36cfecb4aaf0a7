package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type FSLoader struct{}

func NewLoader() *FSLoader { return &FSLoader{} }

// LoadDir reads every *.yaml / *.yml file directly under root as one
// challenge. Results are sorted by id.
func (l *FSLoader) LoadDir(ctx context.Context, root string) ([]Challenge, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	out := make([]Challenge, 0, len(entries))
	seen := map[string]string{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(root, entry.Name())
		ch, err := readChallenge(path)
		if err != nil {
			return nil, fmt.Errorf("load challenge %s: %w", path, err)
		}
		if prev, ok := seen[ch.ID]; ok {
			return nil, fmt.Errorf("duplicate challenge id %q in %s and %s", ch.ID, prev, path)
		}
		seen[ch.ID] = path
		out = append(out, ch)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func readChallenge(path string) (Challenge, error) {
	var ch Challenge
	b, err := os.ReadFile(path)
	if err != nil {
		return ch, err
	}
	if err := yaml.Unmarshal(b, &ch); err != nil {
		return ch, err
	}
	applyDefaults(&ch)
	if err := ch.Validate(); err != nil {
		return ch, err
	}
	return ch, nil
}

func applyDefaults(ch *Challenge) {
	ch.ID = strings.TrimSpace(ch.ID)
	if len(ch.Languages) == 0 {
		ch.Languages = []string{"python"}
	}
	for i := range ch.TestCases {
		if ch.TestCases[i].Input == nil {
			ch.TestCases[i].Input = []any{}
		}
	}
}

// DirCatalog serves challenges from a directory, loading it once.
type DirCatalog struct {
	root   string
	loader *FSLoader

	once  sync.Once
	items []Challenge
	err   error
}

func NewDirCatalog(root string) *DirCatalog {
	return &DirCatalog{root: root, loader: NewLoader()}
}

func (d *DirCatalog) List(ctx context.Context) ([]Challenge, error) {
	d.once.Do(func() {
		d.items, d.err = d.loader.LoadDir(ctx, d.root)
	})
	if d.err != nil {
		return nil, d.err
	}
	return append([]Challenge(nil), d.items...), nil
}

func (d *DirCatalog) Get(ctx context.Context, id string) (Challenge, error) {
	items, err := d.List(ctx)
	if err != nil {
		return Challenge{}, err
	}
	for _, ch := range items {
		if ch.ID == id {
			return ch, nil
		}
	}
	return Challenge{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// FindByInstructions matches a challenge by its instructions text. The
// generation endpoints only receive the instructions, not the id.
func (d *DirCatalog) FindByInstructions(ctx context.Context, instructions string) (Challenge, error) {
	items, err := d.List(ctx)
	if err != nil {
		return Challenge{}, err
	}
	want := strings.TrimSpace(instructions)
	for _, ch := range items {
		if strings.TrimSpace(ch.Instructions) == want {
			return ch, nil
		}
	}
	return Challenge{}, ErrNotFound
}

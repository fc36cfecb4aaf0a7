package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,63}$`)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Challenge is an immutable problem definition. Authored-only fields
// (reference solution, hints, advice) never leave the process as JSON.
type Challenge struct {
	ID           string     `yaml:"id" json:"id" validate:"required"`
	Title        string     `yaml:"title" json:"title" validate:"required"`
	Description  string     `yaml:"description" json:"description"`
	Difficulty   string     `yaml:"difficulty" json:"difficulty"`
	Image        string     `yaml:"image" json:"image"`
	Languages    []string   `yaml:"languages" json:"languages"`
	Instructions string     `yaml:"instructions" json:"instructions" validate:"required"`
	Examples     string     `yaml:"examples" json:"examples"`
	Video        string     `yaml:"video" json:"video"`
	TestCases    []TestCase `yaml:"test_cases" json:"testCases" validate:"min=1,dive"`
	StarterCode  string     `yaml:"starter_code" json:"starterCode,omitempty"`

	Solution    string       `yaml:"solution" json:"-"`
	Explanation string       `yaml:"explanation" json:"-"`
	Advice      string       `yaml:"advice" json:"-"`
	Hints       []HintSource `yaml:"hints" json:"-" validate:"dive"`
}

type TestCase struct {
	Input    []any `yaml:"input" json:"input"`
	Expected any   `yaml:"expected" json:"expected"`
}

// HintSource is a hint authored alongside a challenge, served by the
// offline backend.
type HintSource struct {
	Level   int    `yaml:"level" json:"level" validate:"min=1,max=4"`
	Title   string `yaml:"title" json:"title,omitempty"`
	Content string `yaml:"content" json:"content" validate:"required"`
}

func (c Challenge) Validate() error {
	if !idPattern.MatchString(c.ID) {
		return fmt.Errorf("invalid challenge id %q", c.ID)
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("challenge %s: invalid fields: %s", c.ID, strings.Join(fields, ", "))
		}
		return fmt.Errorf("challenge %s: %w", c.ID, err)
	}
	seen := map[int]bool{}
	for _, h := range c.Hints {
		if seen[h.Level] {
			return fmt.Errorf("challenge %s: duplicate hint level %d", c.ID, h.Level)
		}
		seen[h.Level] = true
	}
	return nil
}

// Summary returns the first non-empty line of the description, falling back
// to the instructions.
func (c Challenge) Summary() string {
	for _, src := range []string{c.Description, c.Instructions} {
		for _, line := range strings.Split(src, "\n") {
			if s := strings.TrimSpace(line); s != "" {
				return s
			}
		}
	}
	return ""
}

package ids

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Generator issues opaque 32-character lowercase hex identifiers. Datasets,
// views and tasks draw from the same space so an id never names two things,
// and ids double as backend table names once quoted.
type Generator struct {
	mu       sync.Mutex
	issued   map[string]struct{}
	taken    func(string) bool
	newToken func() (string, error)
}

func NewGenerator() *Generator {
	return &Generator{
		issued:   map[string]struct{}{},
		newToken: randomToken,
	}
}

// WithTaken installs a check for names that already exist outside this
// process, such as tables left in a file-backed catalog by a previous run.
func (g *Generator) WithTaken(taken func(string) bool) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.taken = taken
	return g
}

func (g *Generator) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	const maxAttempts = 8
	for attempt := 0; attempt < maxAttempts; attempt++ {
		token, err := g.newToken()
		if err != nil {
			return "", fmt.Errorf("generate identifier: %w", err)
		}
		if _, seen := g.issued[token]; seen {
			continue
		}
		if g.taken != nil && g.taken(token) {
			continue
		}
		g.issued[token] = struct{}{}
		return token, nil
	}
	return "", fmt.Errorf("generate identifier: no unused identifier after %d attempts", maxAttempts)
}

func randomToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

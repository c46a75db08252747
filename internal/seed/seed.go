// CLAUDE:SUMMARY YAML debate/user fixtures with embedded defaults, applied once to an empty database
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/debatehub/internal/db"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

const defaultDuration = 24 * time.Hour

type Fixtures struct {
	Users   []UserFixture   `yaml:"users"`
	Debates []DebateFixture `yaml:"debates"`
}

type UserFixture struct {
	Email       string `yaml:"email"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Role        string `yaml:"role"`
	Credibility int    `yaml:"credibility"`
}

// DebateFixture times are relative to the moment of seeding.
type DebateFixture struct {
	Title       string        `yaml:"title"`
	Category    string        `yaml:"category"`
	Description string        `yaml:"description"`
	Status      string        `yaml:"status"`
	StartsIn    time.Duration `yaml:"starts_in"`
	Duration    time.Duration `yaml:"duration"`
}

// Defaults returns the embedded fixtures.
func Defaults() (*Fixtures, error) {
	return Parse(defaultFixtures)
}

// LoadFile reads fixtures from path, or the defaults when path is empty.
func LoadFile(path string) (*Fixtures, error) {
	if path == "" {
		return Defaults()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixtures: %w", err)
	}
	for i, d := range f.Debates {
		if d.Title == "" || d.Category == "" {
			return nil, fmt.Errorf("debate %d: title and category are required", i)
		}
		switch d.Status {
		case "":
			f.Debates[i].Status = db.StatusActive
		case db.StatusActive, db.StatusUpcoming:
		default:
			return nil, fmt.Errorf("debate %q: status must be active or upcoming", d.Title)
		}
	}
	for i, u := range f.Users {
		if u.Email == "" || u.Username == "" || u.Password == "" {
			return nil, fmt.Errorf("user %d: email, username and password are required", i)
		}
	}
	return &f, nil
}

type Result struct {
	Users   int `json:"users"`
	Debates int `json:"debates"`
}

// Seeder applies fixtures. Hash turns a plain password into the stored hash.
type Seeder struct {
	DB                  *db.DB
	Hash                func(password string) (string, error)
	StartingCredibility int
	Logger              *slog.Logger
	Now                 func() time.Time
}

// Apply creates fixture users that do not exist yet and, when the debates
// table is empty, the fixture debates. Running it twice is harmless.
func (s *Seeder) Apply(ctx context.Context, f *Fixtures) (*Result, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	res := &Result{}
	for _, u := range f.Users {
		hash, err := s.Hash(u.Password)
		if err != nil {
			return res, fmt.Errorf("hashing password for %s: %w", u.Username, err)
		}
		cred := u.Credibility
		if cred == 0 {
			cred = s.StartingCredibility
		}
		_, err = s.DB.CreateUser(ctx, db.CreateUserInput{
			Email: u.Email, Username: u.Username, PasswordHash: hash, Role: u.Role, Credibility: cred,
		})
		if errors.Is(err, db.ErrDuplicate) {
			continue
		}
		if err != nil {
			return res, err
		}
		res.Users++
	}

	n, err := s.DB.CountDebates(ctx)
	if err != nil {
		return res, err
	}
	if n > 0 {
		logger.Info("seed: debates already present, skipping", "count", n)
		return res, nil
	}

	base := now().UTC()
	for _, d := range f.Debates {
		start := base.Add(d.StartsIn)
		dur := d.Duration
		if dur <= 0 {
			dur = defaultDuration
		}
		end := start.Add(dur)
		if _, err := s.DB.CreateDebate(ctx, db.CreateDebateInput{
			Title:       d.Title,
			Category:    d.Category,
			Description: d.Description,
			Status:      d.Status,
			StartTime:   start,
			EndTime:     &end,
		}); err != nil {
			return res, fmt.Errorf("creating debate %q: %w", d.Title, err)
		}
		res.Debates++
	}
	logger.Info("seed: applied fixtures", "users", res.Users, "debates", res.Debates)
	return res, nil
}

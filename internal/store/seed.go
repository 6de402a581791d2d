package store

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/timekeep/internal/model"
)

// Fixture is the collaborator data a deployment or test seeds into the
// store: workspaces with their members, users with their active context and
// settings, and projects.
type Fixture struct {
	Workspaces []WorkspaceFixture `yaml:"workspaces"`
	Users      []UserFixture      `yaml:"users"`
	Projects   []model.Project    `yaml:"projects"`
}

// WorkspaceFixture is a workspace and its members.
type WorkspaceFixture struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

// UserFixture sets a user's active workspace and settings. Settings keys
// that are absent keep the defaults passed to Seed.
type UserFixture struct {
	ID              string     `yaml:"id"`
	ActiveWorkspace string     `yaml:"active_workspace"`
	Settings        *yaml.Node `yaml:"settings"`
}

// LoadFixture reads a fixture file. Unknown keys are rejected.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a fixture document.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &f, nil
}

// Seed writes the fixture. Existing rows with the same ids are replaced, so
// seeding is repeatable.
func (s *Store) Seed(ctx context.Context, f *Fixture, defaults model.UserSettings) error {
	for _, ws := range f.Workspaces {
		if ws.ID == "" {
			return fmt.Errorf("seed: workspace without id")
		}
		if err := s.UpsertWorkspace(ctx, ws.ID, ws.Name); err != nil {
			return err
		}
		for _, user := range ws.Members {
			if err := s.AddMembership(ctx, user, ws.ID); err != nil {
				return err
			}
		}
	}
	for _, p := range f.Projects {
		if p.ID == "" {
			return fmt.Errorf("seed: project without id")
		}
		if p.BudgetType != "" && p.BudgetType != model.BudgetHours && p.BudgetType != model.BudgetAmount {
			return fmt.Errorf("seed: project %s: unknown budget type %q", p.ID, p.BudgetType)
		}
		p.Name = model.NormalizeText(p.Name)
		if err := s.UpsertProject(ctx, p); err != nil {
			return err
		}
	}
	for _, u := range f.Users {
		if u.ID == "" {
			return fmt.Errorf("seed: user without id")
		}
		if err := s.SetActiveContext(ctx, u.ID, model.WorkspaceContext(u.ActiveWorkspace)); err != nil {
			return err
		}
		if u.Settings == nil {
			continue
		}
		st := defaults
		if err := u.Settings.Decode(&st); err != nil {
			return fmt.Errorf("seed: settings for %s: %w", u.ID, err)
		}
		if err := s.UpsertSettings(ctx, u.ID, st); err != nil {
			return err
		}
	}
	return nil
}

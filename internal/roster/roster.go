// Package roster loads sessions, teams and locations from a YAML file and
// seeds them into the store.
package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/starboard/internal/adapters/repository"
	"github.com/okian/starboard/internal/domain/model"
)

// ErrInvalidRoster reports a roster that cannot be seeded.
var ErrInvalidRoster = errors.New("invalid roster")

// Roster is the file layout.
type Roster struct {
	Sessions []Session `koanf:"sessions"`
}

// Session lists one competition and its participants.
type Session struct {
	ID        string     `koanf:"id"`
	Name      string     `koanf:"name"`
	Status    string     `koanf:"status"`
	Teams     []Team     `koanf:"teams"`
	Locations []Location `koanf:"locations"`
}

// Team is a roster team. A missing id is derived from the session and name.
type Team struct {
	ID    string `koanf:"id"`
	Name  string `koanf:"name"`
	Color string `koanf:"color"`
}

// Location is a roster location. A missing id is derived from the session and name.
type Location struct {
	ID   string `koanf:"id"`
	Name string `koanf:"name"`
}

// Load reads a roster file.
func Load(path string) (Roster, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Roster{}, fmt.Errorf("load roster %s: %w", path, err)
	}
	return unmarshal(k)
}

func unmarshal(k *koanf.Koanf) (Roster, error) {
	var r Roster
	if err := k.UnmarshalWithConf("", &r, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Roster{}, fmt.Errorf("decode roster: %w", err)
	}
	if err := r.normalize(); err != nil {
		return Roster{}, err
	}
	return r, nil
}

// normalize fills derived ids and defaults and rejects duplicates.
func (r *Roster) normalize() error {
	seen := make(map[string]string)
	claim := func(kind, id string) error {
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s id %q already used by a %s", ErrInvalidRoster, kind, id, prev)
		}
		seen[id] = kind
		return nil
	}

	for i := range r.Sessions {
		s := &r.Sessions[i]
		if s.ID == "" {
			return fmt.Errorf("%w: session %d has no id", ErrInvalidRoster, i)
		}
		if s.Name == "" {
			s.Name = s.ID
		}
		switch model.SessionStatus(s.Status) {
		case "":
			s.Status = string(model.SessionOffline)
		case model.SessionOffline, model.SessionOnline:
		default:
			return fmt.Errorf("%w: session %s has status %q", ErrInvalidRoster, s.ID, s.Status)
		}
		if err := claim("session", s.ID); err != nil {
			return err
		}
		for j := range s.Teams {
			t := &s.Teams[j]
			if t.ID == "" {
				if t.Name == "" {
					return fmt.Errorf("%w: team %d of session %s needs an id or a name", ErrInvalidRoster, j, s.ID)
				}
				t.ID = derivedID(s.ID, "team", t.Name)
			}
			if err := claim("team", t.ID); err != nil {
				return err
			}
		}
		for j := range s.Locations {
			l := &s.Locations[j]
			if l.ID == "" {
				if l.Name == "" {
					return fmt.Errorf("%w: location %d of session %s needs an id or a name", ErrInvalidRoster, j, s.ID)
				}
				l.ID = derivedID(s.ID, "location", l.Name)
			}
			if err := claim("location", l.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// derivedID is stable across restarts so persisted cells keep their keys.
func derivedID(sessionID, kind, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID+"/"+kind+"/"+name)).String()
}

// Seed upserts the roster into the store. The store materializes the
// team x location cells; existing stars are left untouched.
func Seed(ctx context.Context, store repository.RosterStore, r Roster, now time.Time) error {
	for _, s := range r.Sessions {
		if err := store.PutSession(ctx, model.Session{
			ID: s.ID, Name: s.Name, Status: model.SessionStatus(s.Status), CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("seed session %s: %w", s.ID, err)
		}
		for i, t := range s.Teams {
			name := t.Name
			if name == "" {
				name = t.ID
			}
			if err := store.PutTeam(ctx, model.Team{
				ID: t.ID, SessionID: s.ID, Name: name, Color: t.Color, DisplayOrder: i + 1,
			}); err != nil {
				return fmt.Errorf("seed team %s: %w", t.ID, err)
			}
		}
		for i, l := range s.Locations {
			name := l.Name
			if name == "" {
				name = l.ID
			}
			if err := store.PutLocation(ctx, model.Location{
				ID: l.ID, SessionID: s.ID, Name: name, DisplayOrder: i + 1,
			}); err != nil {
				return fmt.Errorf("seed location %s: %w", l.ID, err)
			}
		}
	}
	return nil
}

package variables

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Level selects how far a variable assignment propagates.
type Level uint8

const (
	Local Level = iota
	Root
	Parent
	Grandparent
	System
)

func (l Level) String() string {
	switch l {
	case Local:
		return "local"
	case Root:
		return "root"
	case Parent:
		return "parent"
	case Grandparent:
		return "grandparent"
	case System:
		return "system"
	default:
		return fmt.Sprintf("Level(%d)", l)
	}
}

// ErrInvalidLevel is returned for unknown level codes.
var ErrInvalidLevel = errors.New("invalid variable scope level")

// ParseLevel maps the script-facing level codes onto a Level:
// "s" system, "r" root, "p" parent, "g" grandparent. Codes are
// case-insensitive.
func ParseLevel(code string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "s":
		return System, nil
	case "r":
		return Root, nil
	case "p":
		return Parent, nil
	case "g":
		return Grandparent, nil
	default:
		return Local, fmt.Errorf("%w: %q (use one of s, r, p, g)", ErrInvalidLevel, code)
	}
}

// Propagate writes name=value into local first and then according to level.
//
//   - Root: every space from local up the ancestor chain; stops at a space
//     without parent, at a self-parented space, or at any space already
//     visited.
//   - Parent: local and its immediate parent.
//   - Grandparent: local, parent and the parent's parent.
//   - System: the process-wide store, then the full Root walk.
//
// store may be nil unless level is System.
func Propagate(
	ctx context.Context,
	local *Space,
	store PropertyStore,
	name, value string,
	level Level,
) error {
	if local == nil {
		return errors.New("variables: no local space")
	}
	local.Set(name, value)

	switch level {
	case Local:
		return nil

	case Root:
		walkRoot(local, name, value)
		return nil

	case Parent:
		if p := local.Parent(); p != nil && p != local {
			p.Set(name, value)
		}
		return nil

	case Grandparent:
		p := local.Parent()
		if p == nil || p == local {
			return nil
		}
		p.Set(name, value)
		if gp := p.Parent(); gp != nil && gp != p {
			gp.Set(name, value)
		}
		return nil

	case System:
		if store == nil {
			return errors.New("variables: system level requires a property store")
		}
		if err := store.Set(ctx, name, value); err != nil {
			return fmt.Errorf("variables: system set %q: %w", name, err)
		}
		walkRoot(local, name, value)
		return nil

	default:
		return fmt.Errorf("%w: %v", ErrInvalidLevel, level)
	}
}

// walkRoot is an explicit bounded walk; a visited set guarantees
// termination for self-parented spaces and longer cycles.
func walkRoot(start *Space, name, value string) {
	visited := map[*Space]struct{}{}
	for cur := start; cur != nil; {
		if _, ok := visited[cur]; ok {
			return
		}
		visited[cur] = struct{}{}
		cur.Set(name, value)

		next := cur.Parent()
		if next == cur {
			return
		}
		cur = next
	}
}

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ThemeKey is the key the theme preference is persisted under. It is kept
// apart from the dataset.
const ThemeKey = "threadsTheme"

// A Theme is the color scheme preference.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Toggle returns the opposite theme.
func (t Theme) Toggle() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

func parseTheme(b []byte) Theme {
	if Theme(b) == ThemeLight {
		return ThemeLight
	}
	return ThemeDark
}

// Prefs stores viewer preferences.
type Prefs struct {
	Backend Backend
	Key     string
	Logger  *slog.Logger
}

func (p *Prefs) key() string {
	if p.Key == "" {
		return ThemeKey
	}
	return p.Key
}

// Theme returns the stored theme. Anything but "light" reads as dark.
func (p *Prefs) Theme(ctx context.Context) Theme {
	b, err := p.Backend.Get(ctx, p.key())
	if err != nil {
		if !errors.Is(err, ErrNotFound) && p.Logger != nil {
			p.Logger.Warn("Could not read theme", "key", p.key(), "error", err.Error())
		}
		return ThemeDark
	}
	return parseTheme(b)
}

// SetTheme persists t.
func (p *Prefs) SetTheme(ctx context.Context, t Theme) error {
	if t != ThemeLight && t != ThemeDark {
		return fmt.Errorf("unknown theme %q", t)
	}
	if err := p.Backend.Set(ctx, p.key(), []byte(t)); err != nil {
		return fmt.Errorf("set %s: %w", p.key(), err)
	}
	return nil
}

// ToggleTheme flips the stored theme and returns the new value.
func (p *Prefs) ToggleTheme(ctx context.Context) (Theme, error) {
	var next Theme
	err := p.Backend.Update(ctx, p.key(), func(old []byte) ([]byte, error) {
		next = parseTheme(old).Toggle()
		return []byte(next), nil
	})
	if err != nil {
		return "", fmt.Errorf("update %s: %w", p.key(), err)
	}
	return next, nil
}

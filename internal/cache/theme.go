package cache

import (
	"context"
	"fmt"
	"strconv"
)

// DarkModeKey stores the theme flag as "true" or "false".
const DarkModeKey = "darkMode"

type ThemeStore struct {
	store Store
}

func NewThemeStore(store Store) *ThemeStore {
	return &ThemeStore{store: store}
}

// Dark reports whether dark mode is on. Anything other than "true" is light.
func (t *ThemeStore) Dark(ctx context.Context) (bool, error) {
	raw, ok, err := t.store.Get(ctx, DarkModeKey)
	if err != nil {
		return false, fmt.Errorf("failed to read theme: %w", err)
	}
	return ok && raw == "true", nil
}

func (t *ThemeStore) SetDark(ctx context.Context, dark bool) error {
	if err := t.store.Set(ctx, DarkModeKey, strconv.FormatBool(dark)); err != nil {
		return fmt.Errorf("failed to write theme: %w", err)
	}
	return nil
}

// Toggle flips the flag and returns the new value.
func (t *ThemeStore) Toggle(ctx context.Context) (bool, error) {
	dark, err := t.Dark(ctx)
	if err != nil {
		return false, err
	}
	dark = !dark
	if err := t.SetDark(ctx, dark); err != nil {
		return false, err
	}
	return dark, nil
}

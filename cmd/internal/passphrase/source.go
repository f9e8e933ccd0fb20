// Package passphrase resolves the keystore passphrase exactly once per
// process, from the environment when configured and from the terminal
// otherwise.
package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves a keystore passphrase and caches the result, so every
// command in a run works against the same secret.
type Source struct {
	envVar  string
	confirm bool

	once  sync.Once
	value string
	err   error
}

// Option configures a Source.
type Option func(*Source)

// WithConfirmation makes interactive prompts ask for the passphrase twice
// and reject mismatches. Environment-sourced values are taken as-is.
func WithConfirmation() Option {
	return func(s *Source) { s.confirm = true }
}

// NewSource builds a source that checks envVar before falling back to a
// terminal prompt.
func NewSource(envVar string, opts ...Option) *Source {
	s := &Source{envVar: strings.TrimSpace(envVar)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the passphrase, resolving it on the first call.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if raw, ok := os.LookupEnv(s.envVar); ok {
			// A blank value would silently produce an unprotected keystore.
			if strings.TrimSpace(raw) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return raw, nil
		}
	}
	return s.promptTerminal()
}

func (s *Source) promptTerminal() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if s.envVar == "" {
			return "", errors.New("keystore passphrase required and no terminal available")
		}
		return "", fmt.Errorf("keystore passphrase required; set %s or run interactively", s.envVar)
	}

	value, err := readSecret(fd, "Keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", errors.New("keystore passphrase cannot be empty")
	}
	if s.confirm {
		again, err := readSecret(fd, "Confirm passphrase: ")
		if err != nil {
			return "", err
		}
		if again != value {
			return "", errors.New("passphrases do not match")
		}
	}
	return value, nil
}

// readSecret prompts on stderr so piped stdout stays clean.
func readSecret(fd int, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(raw), nil
}

package user

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// User represents a platform account holder. Rights on storage accounts
// live in the rights module; RootAdmin marks platform operators who hold
// ROLE_ROOT_ADMIN globally.
type User struct {
	ID               int64
	Username         string
	Email            string
	PasswordHash     string
	FirstName        string
	LastName         string
	SecurityQuestion string
	SecurityAnswer   string
	RootAdmin        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("user: not found")
	// ErrUsernameTaken indicates the canonical username is already in use.
	ErrUsernameTaken = errors.New("user: username already exists")
	// ErrInvalidUsername indicates the username fails the format rules.
	ErrInvalidUsername = errors.New("user: invalid username")
	// ErrInvalidPassword indicates a credential check failed.
	ErrInvalidPassword = errors.New("user: invalid password")
)

// Usernames: lowercase alphanumeric start, then letters, digits, dot,
// underscore or dash, 3 to 40 characters total.
var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,39}$`)

// CanonicalUsername folds case so that uniqueness is case-insensitive
// across scripts, not only ASCII. A Caser is stateful, so each call
// gets its own.
func CanonicalUsername(username string) string {
	return cases.Fold().String(strings.TrimSpace(username))
}

// ValidateUsername checks the canonical form against the format rules.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(CanonicalUsername(username)) {
		return ErrInvalidUsername
	}
	return nil
}

package invitation

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// CodeGenerator mints redemption codes. Uniqueness is enforced by the
// store, not the generator; callers retry on collision.
type CodeGenerator interface {
	Generate(email string) (string, error)
}

// NewCodeGenerator selects a generator by configured mode. "hash" derives
// the code from the address and the issue instant; "random" draws from
// crypto/rand.
func NewCodeGenerator(mode string) (CodeGenerator, error) {
	switch mode {
	case "", "hash":
		return HashCodeGenerator{now: time.Now}, nil
	case "random":
		return RandomCodeGenerator{}, nil
	default:
		return nil, fmt.Errorf("invitation: unknown code generator mode %q", mode)
	}
}

// HashCodeGenerator produces hex(sha256(email + issue nanos)).
type HashCodeGenerator struct {
	now func() time.Time
}

func (g HashCodeGenerator) Generate(email string) (string, error) {
	now := g.now
	if now == nil {
		now = time.Now
	}
	sum := sha256.Sum256([]byte(email + strconv.FormatInt(now().UnixNano(), 10)))
	return hex.EncodeToString(sum[:]), nil
}

// RandomCodeGenerator produces 32 random bytes, hex encoded.
type RandomCodeGenerator struct{}

func (RandomCodeGenerator) Generate(string) (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("invitation: read random: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

package domain

import (
	"fmt"

	"github.com/valarpirai/dns-resolver/internal/dns/common/utils"
)

// Question represents a DNS question section entry: the name, type, and class
// being asked about.
type Question struct {
	Name  string
	Type  RRType
	Class RRClass
}

// NewQuestion constructs a Question with a canonicalized name and validates it.
func NewQuestion(name string, rrtype RRType, class RRClass) (Question, error) {
	q := Question{
		Name:  utils.CanonicalDNSName(name),
		Type:  rrtype,
		Class: class,
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Validate checks whether the Question fields are structurally valid.
// Unknown types and classes are permitted; they are resolved transparently.
func (q Question) Validate() error {
	if q.Name == "" {
		return fmt.Errorf("question name must not be empty")
	}
	if q.Type == 0 {
		return fmt.Errorf("question type must not be zero")
	}
	return nil
}

// Matches reports whether another question asks the same thing, comparing
// names case-insensitively.
func (q Question) Matches(other Question) bool {
	return q.Type == other.Type &&
		q.Class == other.Class &&
		utils.CanonicalDNSName(q.Name) == utils.CanonicalDNSName(other.Name)
}

// CacheKey returns a cache key string derived from the question's name and type.
func (q Question) CacheKey() string {
	return GenerateCacheKey(q.Name, q.Type)
}

// String renders the question in dig-like form, e.g. "example.com A IN".
func (q Question) String() string {
	return fmt.Sprintf("%s %s %s", q.Name, q.Type, q.Class)
}

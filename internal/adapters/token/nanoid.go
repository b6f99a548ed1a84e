// Package token issues session tokens and identifiers.
package token

import (
	"fmt"

	nanoid "github.com/jaevor/go-nanoid"

	"github.com/dkeye/Duo/internal/domain"
)

// Length gives ~126 bits of entropy with the URL-safe alphabet.
const Length = 21

// NanoID is safe for concurrent use.
type NanoID struct {
	gen func() string
}

func NewNanoID() (*NanoID, error) {
	gen, err := nanoid.Standard(Length)
	if err != nil {
		return nil, fmt.Errorf("nanoid generator: %w", err)
	}
	return &NanoID{gen: gen}, nil
}

func (n *NanoID) Issue() domain.Token { return domain.Token(n.gen()) }


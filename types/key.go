package types

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// KeySeparator separates the owner from the sub-key.
	KeySeparator = "/"

	// MaxSubKeyLen bounds the sub-key part of a storage key.
	MaxSubKeyLen = 255

	// SubKeyVP holds the validity predicate code of an account.
	SubKeyVP = "vp"
	// SubKeyPubKey holds the ed25519 public key of an account.
	SubKeyPubKey = "ed25519_pk"
	// BalancePrefix prefixes token balance sub-keys: <token>/balance/<owner>.
	BalancePrefix = "balance"
)

var ErrInvalidKey = errors.New("invalid storage key")

// Key is a storage key. Every key is owned by exactly one account, the
// namespace owner, whose validity predicate governs writes under it.
type Key struct {
	Owner Address
	Sub   string
}

// ParseKey parses the "owner/sub" form of a key.
func ParseKey(s string) (Key, error) {
	idx := strings.Index(s, KeySeparator)
	if idx < 0 {
		return Key{}, fmt.Errorf("%w: %q has no separator", ErrInvalidKey, s)
	}
	k := Key{Owner: Address(s[:idx]), Sub: s[idx+1:]}
	if err := k.ValidateBasic(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// MustParseKey is like ParseKey but panics on error. For tests and
// constants only.
func MustParseKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Key) ValidateBasic() error {
	if err := k.Owner.ValidateBasic(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(k.Sub) == 0 || len(k.Sub) > MaxSubKeyLen {
		return fmt.Errorf("%w: sub-key length %d", ErrInvalidKey, len(k.Sub))
	}
	for _, c := range k.Sub {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '.', c == '#', c == '/', c == '-':
		default:
			return fmt.Errorf("%w: sub-key %q contains %q", ErrInvalidKey, k.Sub, c)
		}
	}
	return nil
}

func (k Key) String() string { return string(k.Owner) + KeySeparator + k.Sub }

// Bytes is the canonical encoding used for hashing and persistence.
func (k Key) Bytes() []byte { return []byte(k.String()) }

// IsVP reports whether k holds its owner's validity predicate.
func (k Key) IsVP() bool { return k.Sub == SubKeyVP }

// VPKey returns the key of addr's validity predicate.
func VPKey(addr Address) Key { return Key{Owner: addr, Sub: SubKeyVP} }

// PubKeyKey returns the key of addr's public key.
func PubKeyKey(addr Address) Key { return Key{Owner: addr, Sub: SubKeyPubKey} }

// BalanceKey returns the key of owner's balance of token.
func BalanceKey(token, owner Address) Key {
	return Key{Owner: token, Sub: BalancePrefix + KeySeparator + string(owner)}
}

// BalanceOwner returns the owner of a balance key of token, if k is one.
func BalanceOwner(token Address, k Key) (Address, bool) {
	if k.Owner != token {
		return "", false
	}
	prefix := BalancePrefix + KeySeparator
	if !strings.HasPrefix(k.Sub, prefix) {
		return "", false
	}
	owner := Address(k.Sub[len(prefix):])
	if owner.ValidateBasic() != nil {
		return "", false
	}
	return owner, true
}

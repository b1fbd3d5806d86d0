package assetcache

import (
	"fmt"
	"strconv"
)

// Kind is the category of a displayable asset. The set is closed: adding a
// kind means adding a field to Fetchers as well.
type Kind uint8

const (
	kindInvalid Kind = iota
	KindProfile
	KindChampion
	KindItem
	KindSpell
	KindPerk
)

var kindNames = [...]string{
	kindInvalid:  "invalid",
	KindProfile:  "profile",
	KindChampion: "champion",
	KindItem:     "item",
	KindSpell:    "spell",
	KindPerk:     "perk",
}

// Kinds returns every valid kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindProfile, KindChampion, KindItem, KindSpell, KindPerk}
}

func (k Kind) Valid() bool { return k > kindInvalid && k <= KindPerk }

func (k Kind) String() string {
	if !k.Valid() {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// ParseKind maps a lowercase kind name ("profile", "champion", ...) to its Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if kindNames[k] == s {
			return k, nil
		}
	}
	return kindInvalid, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Key addresses one cached resource. ID 0 is reserved for "no resource" and is
// never looked up or fetched.
type Key struct {
	Kind Kind
	ID   uint32
}

func (k Key) String() string {
	return k.Kind.String() + ":" + strconv.FormatUint(uint64(k.ID), 10)
}

// IsZero reports whether k carries the "no resource" sentinel id.
func (k Key) IsZero() bool { return k.ID == 0 }

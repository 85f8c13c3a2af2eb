package domain

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the Bedrock default and is used whenever a listing omits its port.
const DefaultPort = 19132

const (
	maxNameLen        = 64
	maxHostLen        = 253
	maxDescriptionLen = 1000
	maxVersionLen     = 32
)

// Listing is a community-submitted server record.
type Listing struct {
	ID          string
	Name        string
	IP          string
	Port        int
	Description string
	Version     string

	OwnerID    string
	OwnerEmail string
	CreatedAt  time.Time

	// Votes always equals len(Voters); both change only through the vote protocol.
	Votes  int
	Voters []string

	Verified bool
}

// HasVoter reports whether uid currently has an active vote on the listing.
func (l *Listing) HasVoter(uid string) bool {
	return slices.Contains(l.Voters, uid)
}

// EffectivePort returns the listing port, falling back to DefaultPort.
func (l *Listing) EffectivePort() int {
	if l.Port <= 0 {
		return DefaultPort
	}
	return l.Port
}

// OwnerName is the local part of the owner's email, used as a display name.
func (l *Listing) OwnerName() string {
	name, _, _ := strings.Cut(l.OwnerEmail, "@")
	return name
}

// ListingInput carries the user-supplied fields of a new listing.
type ListingInput struct {
	Name        string
	IP          string
	Port        int
	Description string
	Version     string
}

// Normalize trims whitespace and applies the default port.
func (in ListingInput) Normalize() ListingInput {
	in.Name = strings.TrimSpace(in.Name)
	in.IP = strings.TrimSpace(in.IP)
	in.Description = strings.TrimSpace(in.Description)
	in.Version = strings.TrimSpace(in.Version)
	if in.Port == 0 {
		in.Port = DefaultPort
	}
	return in
}

// Validate checks a normalized input.
func (in ListingInput) Validate() error {
	if err := validateName(in.Name); err != nil {
		return err
	}
	if err := validateHost(in.IP); err != nil {
		return err
	}
	if err := validatePort(in.Port); err != nil {
		return err
	}
	if err := validateDescription(in.Description); err != nil {
		return err
	}
	return validateVersion(in.Version)
}

// ListingPatch is the allow-list of owner-editable fields. Nil means unchanged.
// Protocol-controlled fields (owner, votes, voters, creation time, verified) have no slot here.
type ListingPatch struct {
	Name        *string
	IP          *string
	Port        *int
	Description *string
	Version     *string
}

// IsEmpty reports whether the patch changes nothing.
func (p ListingPatch) IsEmpty() bool {
	return p.Name == nil && p.IP == nil && p.Port == nil && p.Description == nil && p.Version == nil
}

// Validate checks every field the patch sets.
func (p ListingPatch) Validate() error {
	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return err
		}
	}
	if p.IP != nil {
		if err := validateHost(*p.IP); err != nil {
			return err
		}
	}
	if p.Port != nil {
		if err := validatePort(*p.Port); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.Version != nil {
		return validateVersion(*p.Version)
	}
	return nil
}

// Apply returns a copy of l with the patch applied.
func (p ListingPatch) Apply(l Listing) Listing {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.IP != nil {
		l.IP = *p.IP
	}
	if p.Port != nil {
		l.Port = *p.Port
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Version != nil {
		l.Version = *p.Version
	}
	return l
}

var protectedFields = []string{"id", "ownerId", "ownerEmail", "createdAt", "votes", "voters", "verified"}

// ParseListingPatch builds a patch from raw key/value input. Protected and unknown
// keys are rejected rather than dropped. A protected key is reported ahead of any
// other problem; otherwise keys are checked in sorted order.
func ParseListingPatch(fields map[string]string) (ListingPatch, error) {
	keys := slices.Sorted(maps.Keys(fields))
	for _, key := range keys {
		if slices.Contains(protectedFields, key) {
			return ListingPatch{}, fmt.Errorf("%w: %s", ErrProtectedField, key)
		}
	}

	var p ListingPatch
	for _, key := range keys {
		value := strings.TrimSpace(fields[key])
		switch key {
		case "name":
			p.Name = &value
		case "ip":
			p.IP = &value
		case "port":
			port := DefaultPort
			if value != "" {
				n, err := strconv.Atoi(value)
				if err != nil {
					return ListingPatch{}, invalid("port", "must be a number")
				}
				port = n
			}
			p.Port = &port
		case "description":
			p.Description = &value
		case "version":
			p.Version = &value
		default:
			return ListingPatch{}, fmt.Errorf("%w: %s", ErrUnknownField, key)
		}
	}
	return p, nil
}

func validateName(name string) error {
	if name == "" {
		return invalid("name", "cannot be empty")
	}
	if len(name) > maxNameLen {
		return invalid("name", fmt.Sprintf("exceeds %d characters", maxNameLen))
	}
	return nil
}

func validateHost(host string) error {
	if host == "" {
		return invalid("ip", "cannot be empty")
	}
	if len(host) > maxHostLen {
		return invalid("ip", fmt.Sprintf("exceeds %d characters", maxHostLen))
	}
	if strings.Contains(host, "://") || strings.ContainsAny(host, " \t\r\n/") {
		return invalid("ip", "must be a bare host name or address")
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return invalid("port", "must be between 1 and 65535")
	}
	return nil
}

func validateDescription(description string) error {
	if len(description) > maxDescriptionLen {
		return invalid("description", fmt.Sprintf("exceeds %d characters", maxDescriptionLen))
	}
	return nil
}

func validateVersion(version string) error {
	if len(version) > maxVersionLen {
		return invalid("version", fmt.Sprintf("exceeds %d characters", maxVersionLen))
	}
	return nil
}

// ListingRepository is the document store for listings.
type ListingRepository interface {
	Create(ctx context.Context, listing Listing) (string, error)
	List(ctx context.Context, ownerID string) ([]Listing, error)
	GetByID(ctx context.Context, id string) (*Listing, error)
	Update(ctx context.Context, id string, patch ListingPatch) error
	Delete(ctx context.Context, id string) error
	SetVerified(ctx context.Context, id string, verified bool) error

	// AddVoter atomically increments votes and adds uid to voters, only if uid is absent.
	// Reports false when nothing matched.
	AddVoter(ctx context.Context, id, uid string) (bool, error)
	// RemoveVoter atomically decrements votes and removes uid from voters, only if uid is present.
	RemoveVoter(ctx context.Context, id, uid string) (bool, error)
}

// AdminDirectory answers capability checks against the users collection.
type AdminDirectory interface {
	IsAdmin(ctx context.Context, uid string) (bool, error)
}

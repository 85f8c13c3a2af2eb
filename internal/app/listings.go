package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/serverlist/internal/domain"
)

// ListingService applies the ownership and vote rules on top of the listing store.
// Every ownership-sensitive mutation re-reads the stored record first; caller-supplied
// owner IDs are only ever used as an additional guard.
type ListingService struct {
	listings domain.ListingRepository
	admins   domain.AdminDirectory
	clock    clockwork.Clock
}

func NewListingService(listings domain.ListingRepository, admins domain.AdminDirectory, clock clockwork.Clock) *ListingService {
	return &ListingService{listings: listings, admins: admins, clock: clock}
}

// Create stores a new listing owned by ident. Without a session nothing is written.
func (s *ListingService) Create(ctx context.Context, ident *domain.Identity, input domain.ListingInput) (string, error) {
	if ident == nil {
		return "", domain.ErrUnauthenticated
	}

	input = input.Normalize()
	if err := input.Validate(); err != nil {
		return "", err
	}

	listing := domain.Listing{
		Name:        input.Name,
		IP:          input.IP,
		Port:        input.Port,
		Description: input.Description,
		Version:     input.Version,
		OwnerID:     ident.UID,
		OwnerEmail:  ident.Email,
		CreatedAt:   s.clock.Now().UTC(),
		Votes:       0,
		Voters:      []string{},
		Verified:    false,
	}

	id, err := s.listings.Create(ctx, listing)
	if err != nil {
		return "", fmt.Errorf("failed to create listing: %w", err)
	}

	slog.InfoContext(ctx, "Listing created", "listing_id", id, "owner_id", ident.UID)
	return id, nil
}

// List returns all listings, or only those owned by ownerID when it is non-empty.
func (s *ListingService) List(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	return s.listings.List(ctx, ownerID)
}

func (s *ListingService) Get(ctx context.Context, id string) (*domain.Listing, error) {
	return s.listings.GetByID(ctx, id)
}

// Update applies an allow-listed patch. expectedOwnerID may be empty; when set it
// must agree with the stored owner.
func (s *ListingService) Update(ctx context.Context, ident *domain.Identity, id string, patch domain.ListingPatch, expectedOwnerID string) error {
	if ident == nil {
		return domain.ErrUnauthenticated
	}
	if _, err := s.authorizeOwner(ctx, ident, id, expectedOwnerID); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.IsEmpty() {
		return nil
	}

	if err := s.listings.Update(ctx, id, patch); err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	return nil
}

// Delete removes a listing owned by ident.
func (s *ListingService) Delete(ctx context.Context, ident *domain.Identity, id string, expectedOwnerID string) error {
	if ident == nil {
		return domain.ErrUnauthenticated
	}
	if _, err := s.authorizeOwner(ctx, ident, id, expectedOwnerID); err != nil {
		return err
	}

	if err := s.listings.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}

	slog.InfoContext(ctx, "Listing deleted", "listing_id", id, "owner_id", ident.UID)
	return nil
}

func (s *ListingService) authorizeOwner(ctx context.Context, ident *domain.Identity, id string, expectedOwnerID string) (*domain.Listing, error) {
	stored, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.OwnerID != ident.UID {
		return nil, domain.ErrForbidden
	}
	if expectedOwnerID != "" && expectedOwnerID != stored.OwnerID {
		return nil, domain.ErrForbidden
	}
	return stored, nil
}

// Vote toggles ident's vote on the listing and reports whether a vote is now cast.
//
// The snapshot only picks which direction to try first. Both directions are
// conditional single-document updates, so a stale snapshot falls through to the
// opposite direction instead of double counting.
func (s *ListingService) Vote(ctx context.Context, ident *domain.Identity, id string, snapshot *domain.Listing) (bool, error) {
	if ident == nil {
		return false, domain.ErrUnauthenticated
	}

	if snapshot == nil {
		fresh, err := s.listings.GetByID(ctx, id)
		if err != nil {
			return false, err
		}
		snapshot = fresh
	}

	if snapshot.HasVoter(ident.UID) {
		return s.retractThenCast(ctx, id, ident.UID)
	}
	return s.castThenRetract(ctx, id, ident.UID)
}

func (s *ListingService) castThenRetract(ctx context.Context, id, uid string) (bool, error) {
	ok, err := s.listings.AddVoter(ctx, id, uid)
	if err != nil {
		return false, fmt.Errorf("failed to cast vote: %w", err)
	}
	if ok {
		return true, nil
	}

	slog.DebugContext(ctx, "Stale vote snapshot, retracting instead", "listing_id", id)
	ok, err = s.listings.RemoveVoter(ctx, id, uid)
	if err != nil {
		return false, fmt.Errorf("failed to retract vote: %w", err)
	}
	if !ok {
		return false, domain.ErrListingNotFound
	}
	return false, nil
}

func (s *ListingService) retractThenCast(ctx context.Context, id, uid string) (bool, error) {
	ok, err := s.listings.RemoveVoter(ctx, id, uid)
	if err != nil {
		return false, fmt.Errorf("failed to retract vote: %w", err)
	}
	if ok {
		return false, nil
	}

	slog.DebugContext(ctx, "Stale vote snapshot, casting instead", "listing_id", id)
	ok, err = s.listings.AddVoter(ctx, id, uid)
	if err != nil {
		return false, fmt.Errorf("failed to cast vote: %w", err)
	}
	if !ok {
		return false, domain.ErrListingNotFound
	}
	return true, nil
}

// IsAdmin fails closed: any lookup failure means no admin capability.
func (s *ListingService) IsAdmin(ctx context.Context, uid string) bool {
	if uid == "" {
		return false
	}
	admin, err := s.admins.IsAdmin(ctx, uid)
	if err != nil {
		slog.WarnContext(ctx, "Admin lookup failed", "user_id", uid, "error", err)
		return false
	}
	return admin
}

// SetVerified sets the moderation flag. Admins only.
func (s *ListingService) SetVerified(ctx context.Context, ident *domain.Identity, id string, verified bool) error {
	if ident == nil {
		return domain.ErrUnauthenticated
	}
	if !s.IsAdmin(ctx, ident.UID) {
		return domain.ErrForbidden
	}

	if err := s.listings.SetVerified(ctx, id, verified); err != nil {
		if errors.Is(err, domain.ErrListingNotFound) {
			return err
		}
		return fmt.Errorf("failed to set verified: %w", err)
	}

	slog.InfoContext(ctx, "Listing verification changed", "listing_id", id, "verified", verified, "admin_id", ident.UID)
	return nil
}

package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/pscheid92/serverlist/internal/domain"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortKey selects the ordering of the listing view.
type SortKey string

const (
	SortVotes  SortKey = "votes"
	SortNewest SortKey = "newest"
	SortOldest SortKey = "oldest"
	SortName   SortKey = "name"
)

// ParseSortKey maps raw input to a sort key. Empty input sorts by votes; anything
// unrecognized is kept so that it falls back to store order.
func ParseSortKey(raw string) SortKey {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return SortVotes
	}
	return SortKey(raw)
}

// ViewState tells an empty result apart from one that has not loaded yet.
type ViewState string

const (
	ViewLoading ViewState = "loading"
	ViewEmpty   ViewState = "empty"
	ViewReady   ViewState = "ready"
)

// Card is one visible listing. Status receives exactly one value once the
// listing's own check resolves, independent of every other card.
type Card struct {
	Listing domain.Listing
	Status  <-chan domain.StatusResult
}

type ListPage struct {
	State ViewState
	Cards []Card
}

// Listings returns the ordered listings of the page.
func (p *ListPage) Listings() []domain.Listing {
	out := make([]domain.Listing, len(p.Cards))
	for i, c := range p.Cards {
		out[i] = c.Listing
	}
	return out
}

type listingLister interface {
	List(ctx context.Context, ownerID string) ([]domain.Listing, error)
}

// ListView merges stored listings with live status checks into an ordered page.
type ListView struct {
	listings listingLister
	checker  domain.StatusChecker
	locale   language.Tag
	bedrock  bool
}

func NewListView(listings listingLister, checker domain.StatusChecker, locale language.Tag, bedrock bool) *ListView {
	return &ListView{listings: listings, checker: checker, locale: locale, bedrock: bedrock}
}

// Render fetches the whole collection, filters and sorts it, and starts one status
// check per visible card. It returns as soon as the ordering is known; statuses
// arrive later on each card's channel.
func (v *ListView) Render(ctx context.Context, key SortKey, term string) (*ListPage, error) {
	state, visible, err := v.Snapshot(ctx, key, term)
	if err != nil {
		return nil, err
	}
	if state == ViewEmpty {
		return &ListPage{State: ViewEmpty}, nil
	}

	// Status checks outlive the caller: a result nobody reads is simply dropped.
	checkCtx := context.WithoutCancel(ctx)

	cards := make([]Card, len(visible))
	for i, l := range visible {
		ch := make(chan domain.StatusResult, 1)
		go func() {
			ch <- v.checker.Check(checkCtx, l.IP, l.EffectivePort(), v.bedrock)
		}()
		cards[i] = Card{Listing: l, Status: ch}
	}

	return &ListPage{State: ViewReady, Cards: cards}, nil
}

// Snapshot returns the filtered, ordered listings without checking any status.
func (v *ListView) Snapshot(ctx context.Context, key SortKey, term string) (ViewState, []domain.Listing, error) {
	all, err := v.listings.List(ctx, "")
	if err != nil {
		return "", nil, fmt.Errorf("failed to list servers: %w", err)
	}

	visible := FilterListings(all, term)
	SortListings(visible, key, v.locale)

	if len(visible) == 0 {
		return ViewEmpty, []domain.Listing{}, nil
	}
	return ViewReady, visible, nil
}

// EventKind identifies a stream event.
type EventKind string

const (
	EventLoading  EventKind = "loading"
	EventListings EventKind = "listings"
	EventStatus   EventKind = "status"
)

type ViewEvent struct {
	Kind      EventKind
	State     ViewState
	Listings  []domain.Listing
	ListingID string
	Status    domain.StatusResult
}

// Stream emits loading, then the ordered listings, then one status event per card
// in the order the checks resolve. It stops when ctx ends, emit fails, or every
// status has been delivered.
func (v *ListView) Stream(ctx context.Context, key SortKey, term string, emit func(ViewEvent) error) error {
	if err := emit(ViewEvent{Kind: EventLoading, State: ViewLoading}); err != nil {
		return err
	}

	page, err := v.Render(ctx, key, term)
	if err != nil {
		return err
	}
	if err := emit(ViewEvent{Kind: EventListings, State: page.State, Listings: page.Listings()}); err != nil {
		return err
	}

	results := make(chan ViewEvent, len(page.Cards))
	for _, card := range page.Cards {
		go func() {
			status := <-card.Status
			results <- ViewEvent{Kind: EventStatus, ListingID: card.Listing.ID, Status: status}
		}()
	}

	for range page.Cards {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-results:
			if err := emit(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// FilterListings keeps listings whose name or address contains the trimmed term,
// ignoring case. An empty term keeps everything.
func FilterListings(listings []domain.Listing, term string) []domain.Listing {
	term = strings.ToLower(strings.TrimSpace(term))

	out := make([]domain.Listing, 0, len(listings))
	for _, l := range listings {
		if term == "" ||
			strings.Contains(strings.ToLower(l.Name), term) ||
			strings.Contains(strings.ToLower(l.IP), term) {
			out = append(out, l)
		}
	}
	return out
}

// SortListings orders listings in place. All orderings are stable; an unknown key
// leaves store order untouched.
func SortListings(listings []domain.Listing, key SortKey, locale language.Tag) {
	switch key {
	case SortVotes:
		slices.SortStableFunc(listings, func(a, b domain.Listing) int {
			return cmp.Compare(b.Votes, a.Votes)
		})
	case SortNewest:
		slices.SortStableFunc(listings, func(a, b domain.Listing) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	case SortOldest:
		slices.SortStableFunc(listings, func(a, b domain.Listing) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	case SortName:
		// Collators keep internal buffers and are not safe to share across goroutines.
		c := collate.New(locale, collate.IgnoreCase)
		slices.SortStableFunc(listings, func(a, b domain.Listing) int {
			return c.CompareString(a.Name, b.Name)
		})
	}
}

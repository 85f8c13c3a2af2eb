package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pscheid92/serverlist/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

type mockStatusChecker struct {
	checkFn func(ctx context.Context, host string, port int, bedrock bool) domain.StatusResult
}

func (m *mockStatusChecker) Check(ctx context.Context, host string, port int, bedrock bool) domain.StatusResult {
	if m.checkFn != nil {
		return m.checkFn(ctx, host, port, bedrock)
	}
	return domain.OfflineStatus()
}

func names(listings []domain.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.Name
	}
	return out
}

// --- Sort / filter tests ---

func TestSortListings_Votes(t *testing.T) {
	listings := []domain.Listing{{Name: "a", Votes: 3}, {Name: "b", Votes: 1}, {Name: "c", Votes: 2}}

	SortListings(listings, SortVotes, language.English)

	votes := []int{listings[0].Votes, listings[1].Votes, listings[2].Votes}
	assert.Equal(t, []int{3, 2, 1}, votes)
}

func TestSortListings_NameIgnoresCase(t *testing.T) {
	listings := []domain.Listing{{Name: "Bravo"}, {Name: "alpha"}}

	SortListings(listings, SortName, language.English)

	assert.Equal(t, []string{"alpha", "Bravo"}, names(listings))
}

func TestSortListings_Dates(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	listings := []domain.Listing{
		{Name: "mid", CreatedAt: base.Add(time.Hour)},
		{Name: "old", CreatedAt: base},
		{Name: "new", CreatedAt: base.Add(2 * time.Hour)},
	}

	SortListings(listings, SortNewest, language.English)
	assert.Equal(t, []string{"new", "mid", "old"}, names(listings))

	SortListings(listings, SortOldest, language.English)
	assert.Equal(t, []string{"old", "mid", "new"}, names(listings))
}

func TestSortListings_StableAndUnknownKey(t *testing.T) {
	listings := []domain.Listing{{Name: "first", Votes: 1}, {Name: "second", Votes: 1}, {Name: "third", Votes: 2}}

	SortListings(listings, SortVotes, language.English)
	assert.Equal(t, []string{"third", "first", "second"}, names(listings))

	SortListings(listings, SortKey("popularity"), language.English)
	assert.Equal(t, []string{"third", "first", "second"}, names(listings))
}

func TestFilterListings(t *testing.T) {
	listings := []domain.Listing{
		{Name: "One", IP: "bedrock.example.com"},
		{Name: "Two", IP: "other.example.com"},
	}

	got := FilterListings(listings, "bed")
	require.Len(t, got, 1)
	assert.Equal(t, "bedrock.example.com", got[0].IP)

	assert.Len(t, FilterListings(listings, "  two "), 1, "matches name, case-insensitive, trimmed")
	assert.Len(t, FilterListings(listings, ""), 2)
	assert.Empty(t, FilterListings(listings, "nothing"))
}

func TestParseSortKey(t *testing.T) {
	assert.Equal(t, SortVotes, ParseSortKey(""))
	assert.Equal(t, SortName, ParseSortKey(" Name "))
	assert.Equal(t, SortKey("bogus"), ParseSortKey("bogus"))
}

// --- Render / Stream tests ---

func TestRender_EmptyIsDistinctFromLoading(t *testing.T) {
	view := NewListView(newMemListingRepo(), &mockStatusChecker{}, language.English, true)

	page, err := view.Render(context.Background(), SortVotes, "")
	require.NoError(t, err)
	assert.Equal(t, ViewEmpty, page.State)
	assert.Empty(t, page.Cards)
}

func TestRender_ListError(t *testing.T) {
	repo := newMemListingRepo()
	repo.listErr = fmt.Errorf("store unavailable")
	view := NewListView(repo, &mockStatusChecker{}, language.English, true)

	_, err := view.Render(context.Background(), SortVotes, "")
	assert.Error(t, err)
}

func TestSnapshot_FiltersAndSortsWithoutChecks(t *testing.T) {
	repo := newMemListingRepo(
		domain.Listing{ID: "1", Name: "Bedrock Land", IP: "bedrock.example.com", Votes: 1},
		domain.Listing{ID: "2", Name: "Java Land", IP: "java.example.com", Votes: 5},
		domain.Listing{ID: "3", Name: "Bedrock Two", IP: "b2.example.com", Votes: 3},
	)
	checker := &mockStatusChecker{checkFn: func(context.Context, string, int, bool) domain.StatusResult {
		t.Error("snapshot must not check status")
		return domain.OfflineStatus()
	}}
	view := NewListView(repo, checker, language.English, true)

	state, listings, err := view.Snapshot(context.Background(), SortVotes, "bedrock")
	require.NoError(t, err)
	assert.Equal(t, ViewReady, state)
	assert.Equal(t, []string{"Bedrock Two", "Bedrock Land"}, names(listings))

	state, listings, err = view.Snapshot(context.Background(), SortVotes, "nothing matches")
	require.NoError(t, err)
	assert.Equal(t, ViewEmpty, state)
	assert.Empty(t, listings)
}

func TestRender_StatusesResolveIndependently(t *testing.T) {
	repo := newMemListingRepo(
		domain.Listing{ID: "1", Name: "slow", IP: "slow.example.com", Votes: 2},
		domain.Listing{ID: "2", Name: "fast", IP: "fast.example.com", Port: 25565, Votes: 1},
	)

	release := make(chan struct{})
	var mu sync.Mutex
	var ports []int
	checker := &mockStatusChecker{
		checkFn: func(_ context.Context, host string, port int, bedrock bool) domain.StatusResult {
			mu.Lock()
			ports = append(ports, port)
			mu.Unlock()
			assert.True(t, bedrock)
			if host == "slow.example.com" {
				<-release
			}
			return domain.StatusResult{Online: true, Players: 3, MaxPlayers: 10}
		},
	}
	view := NewListView(repo, checker, language.English, true)

	page, err := view.Render(context.Background(), SortVotes, "")
	require.NoError(t, err)
	require.Equal(t, ViewReady, page.State)
	require.Equal(t, []string{"slow", "fast"}, names(page.Listings()))

	select {
	case status := <-page.Cards[1].Status:
		assert.True(t, status.Online)
	case <-time.After(time.Second):
		t.Fatal("fast card blocked behind slow card")
	}

	close(release)
	status := <-page.Cards[0].Status
	assert.Equal(t, 3, status.Players)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{domain.DefaultPort, 25565}, ports)
}

func TestRender_ChecksOutliveCaller(t *testing.T) {
	repo := newMemListingRepo(domain.Listing{ID: "1", Name: "a", IP: "a.example.com"})
	checker := &mockStatusChecker{
		checkFn: func(ctx context.Context, _ string, _ int, _ bool) domain.StatusResult {
			return domain.StatusResult{Online: ctx.Err() == nil}
		},
	}
	view := NewListView(repo, checker, language.English, true)

	ctx, cancel := context.WithCancel(context.Background())
	page, err := view.Render(ctx, SortVotes, "")
	require.NoError(t, err)
	cancel()

	assert.True(t, (<-page.Cards[0].Status).Online)
}

func TestStream_EventOrder(t *testing.T) {
	repo := newMemListingRepo(
		domain.Listing{ID: "1", Name: "slow", IP: "slow.example.com", Votes: 2},
		domain.Listing{ID: "2", Name: "fast", IP: "fast.example.com", Votes: 1},
	)
	release := make(chan struct{})
	checker := &mockStatusChecker{
		checkFn: func(_ context.Context, host string, _ int, _ bool) domain.StatusResult {
			if host == "slow.example.com" {
				<-release
			}
			return domain.StatusResult{Online: true}
		},
	}
	view := NewListView(repo, checker, language.English, true)

	var events []ViewEvent
	err := view.Stream(context.Background(), SortVotes, "", func(ev ViewEvent) error {
		events = append(events, ev)
		if ev.Kind == EventStatus && ev.ListingID == "2" {
			close(release)
		}
		return nil
	})
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, EventLoading, events[0].Kind)
	assert.Equal(t, ViewLoading, events[0].State)
	assert.Equal(t, EventListings, events[1].Kind)
	assert.Equal(t, []string{"slow", "fast"}, names(events[1].Listings))
	assert.Equal(t, "2", events[2].ListingID, "fast status arrives first")
	assert.Equal(t, "1", events[3].ListingID)
}

func TestStream_StopsOnEmitError(t *testing.T) {
	repo := newMemListingRepo(domain.Listing{ID: "1", Name: "a", IP: "a.example.com"})
	view := NewListView(repo, &mockStatusChecker{}, language.English, true)

	gone := fmt.Errorf("client gone")
	err := view.Stream(context.Background(), SortVotes, "", func(ev ViewEvent) error {
		if ev.Kind == EventListings {
			return gone
		}
		return nil
	})
	assert.ErrorIs(t, err, gone)
}

package httpserver

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pscheid92/serverlist/internal/app"
	"github.com/pscheid92/serverlist/internal/domain"
)

// listingResponse is the public shape of a listing. Voter IDs and the owner's
// full email never leave the server; viewers only learn whether they voted.
type listingResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IP          string    `json:"ip"`
	Port        int       `json:"port"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version,omitempty"`
	OwnerID     string    `json:"owner_id"`
	OwnerName   string    `json:"owner_name"`
	CreatedAt   time.Time `json:"created_at"`
	Votes       int       `json:"votes"`
	Voted       bool      `json:"voted"`
	Owned       bool      `json:"owned"`
	Verified    bool      `json:"verified"`
}

func toListingResponse(l domain.Listing, viewer *domain.Identity) listingResponse {
	resp := listingResponse{
		ID:          l.ID,
		Name:        l.Name,
		IP:          l.IP,
		Port:        l.EffectivePort(),
		Description: l.Description,
		Version:     l.Version,
		OwnerID:     l.OwnerID,
		OwnerName:   l.OwnerName(),
		CreatedAt:   l.CreatedAt,
		Votes:       l.Votes,
		Verified:    l.Verified,
	}
	if viewer != nil {
		resp.Voted = l.HasVoter(viewer.UID)
		resp.Owned = l.OwnerID == viewer.UID
	}
	return resp
}

func toListingResponses(listings []domain.Listing, viewer *domain.Identity) []listingResponse {
	out := make([]listingResponse, len(listings))
	for i, l := range listings {
		out[i] = toListingResponse(l, viewer)
	}
	return out
}

type listResponse struct {
	State   app.ViewState     `json:"state"`
	Servers []listingResponse `json:"servers"`
}

type listingRequest struct {
	Name        string      `json:"name" form:"name"`
	IP          string      `json:"ip" form:"ip"`
	Port        json.Number `json:"port" form:"port"`
	Description string      `json:"description" form:"description"`
	Version     string      `json:"version" form:"version"`
}

// toInput parses the port leniently: empty means the default port.
func (r listingRequest) toInput() (domain.ListingInput, error) {
	input := domain.ListingInput{
		Name:        r.Name,
		IP:          r.IP,
		Description: r.Description,
		Version:     r.Version,
	}
	if r.Port != "" {
		port, err := strconv.Atoi(r.Port.String())
		if err != nil {
			return domain.ListingInput{}, &domain.ValidationError{Field: "port", Reason: "must be a number"}
		}
		input.Port = port
	}
	return input, nil
}

// patchFields flattens a decoded JSON object into the string map the patch parser takes.
func patchFields(body map[string]any) (map[string]string, error) {
	fields := make(map[string]string, len(body))
	for key, raw := range body {
		switch v := raw.(type) {
		case nil:
			fields[key] = ""
		case string:
			fields[key] = v
		case float64:
			fields[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			fields[key] = strconv.FormatBool(v)
		default:
			return nil, &domain.ValidationError{Field: key, Reason: fmt.Sprintf("has unsupported type %T", raw)}
		}
	}
	return fields, nil
}

type voteRequest struct {
	// Voted is the client's view of its own vote. Nil asks the server to read it.
	Voted *bool `json:"voted"`
}

type voteResponse struct {
	Voted bool `json:"voted"`
}

type verifyRequest struct {
	Verified bool `json:"verified"`
}

type credentialsRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type authResponse struct {
	Header   app.HeaderView `json:"header"`
	Redirect string         `json:"redirect"`
}

type sessionResponse struct {
	Header    app.HeaderView `json:"header"`
	CSRFToken string         `json:"csrf_token"`
}

type dashboardResponse struct {
	Header  app.HeaderView    `json:"header"`
	Servers []listingResponse `json:"servers"`
	IsAdmin bool              `json:"is_admin"`
}

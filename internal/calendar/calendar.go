// Package calendar connects to the user's Google Calendar through OAuth2.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const primaryCalendar = "primary"

var (
	ErrNotConfigured    = errors.New("google calendar client is not configured")
	ErrNotAuthenticated = errors.New("google calendar is not authenticated")
)

// Event is the subset of a Google Calendar event returned to tools.
type Event struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Link        string `json:"htmlLink,omitempty"`
}

// EventInput describes an event to create. Duration defaults to one hour.
type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	Duration    time.Duration
}

type Options struct {
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	CredentialsPath string
	TokenPath       string
	TimeZone        string
}

// Service holds the OAuth2 client state and the connected calendar API.
type Service struct {
	opts Options
	loc  *time.Location

	mu     sync.RWMutex
	oauth  *oauth2.Config
	token  *oauth2.Token
	api    *gcal.Service
	client []option.ClientOption
}

func New(opts Options) *Service {
	loc := time.Local
	if opts.TimeZone != "" {
		if l, err := time.LoadLocation(opts.TimeZone); err == nil {
			loc = l
		} else {
			log.Printf("⚠️ Unknown time zone %q, using local: %v", opts.TimeZone, err)
		}
	}
	return &Service{opts: opts, loc: loc}
}

// Location is the zone dates and times from tools are interpreted in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Init loads the OAuth client from the environment or the saved credentials
// file and reconnects with a stored token when there is one. A missing
// client or token is not an error.
func (s *Service) Init(ctx context.Context) error {
	var creds *OAuth2Credentials
	switch {
	case s.opts.ClientID != "" && s.opts.ClientSecret != "":
		creds = &OAuth2Credentials{
			ClientID:     s.opts.ClientID,
			ClientSecret: s.opts.ClientSecret,
			RedirectURIs: []string{s.opts.RedirectURI},
		}
	case s.opts.CredentialsPath != "":
		data, err := os.ReadFile(s.opts.CredentialsPath)
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("ℹ️ Google Calendar credentials not found, integration disabled until setup")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read credentials: %w", err)
		}
		creds, err = ParseCredentials(string(data))
		if err != nil {
			return err
		}
	default:
		return nil
	}

	s.mu.Lock()
	s.oauth = oauthConfig(creds)
	s.mu.Unlock()

	if err := s.restoreToken(ctx); err != nil {
		log.Printf("⚠️ Stored Google Calendar token unusable: %v", err)
	}
	return nil
}

// Configure installs new client credentials, saves them and returns the
// consent URL. The URL is empty when a stored token already works.
func (s *Service) Configure(ctx context.Context, credentialsJSON string) (string, error) {
	creds, err := ParseCredentials(credentialsJSON)
	if err != nil {
		return "", err
	}
	if s.opts.CredentialsPath != "" {
		if err := saveCredentials(s.opts.CredentialsPath, credentialsJSON); err != nil {
			log.Printf("⚠️ Failed to save Google credentials: %v", err)
		}
	}

	s.mu.Lock()
	s.oauth = oauthConfig(creds)
	s.token = nil
	s.api = nil
	s.mu.Unlock()

	if err := s.restoreToken(ctx); err == nil && s.IsAuthenticated() {
		return "", nil
	}
	return s.AuthURL()
}

// AuthURL returns the consent screen URL for offline access.
func (s *Service) AuthURL() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.oauth == nil {
		return "", ErrNotConfigured
	}
	return s.oauth.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Authenticate exchanges an authorization code and persists the token.
func (s *Service) Authenticate(ctx context.Context, code string) error {
	s.mu.RLock()
	cfg := s.oauth
	s.mu.RUnlock()
	if cfg == nil {
		return ErrNotConfigured
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}
	if err := s.saveToken(tok); err != nil {
		log.Printf("⚠️ Warning: failed to save token to cache: %v", err)
	}
	if err := s.connect(ctx, cfg, tok); err != nil {
		return err
	}
	log.Printf("✅ Google Calendar authenticated")
	return nil
}

func (s *Service) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.api != nil
}

// RefreshToken renews the access token if it expired and saves the result.
func (s *Service) RefreshToken(ctx context.Context) error {
	s.mu.RLock()
	cfg, tok := s.oauth, s.token
	s.mu.RUnlock()
	if cfg == nil {
		return ErrNotConfigured
	}
	if tok == nil {
		return ErrNotAuthenticated
	}

	fresh, err := cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	if fresh.AccessToken == tok.AccessToken {
		return nil
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	if err := s.saveToken(fresh); err != nil {
		return fmt.Errorf("save refreshed token: %w", err)
	}
	log.Printf("🔄 Google Calendar token refreshed")
	return s.connect(ctx, cfg, fresh)
}

func (s *Service) AddEvent(ctx context.Context, in EventInput) (Event, error) {
	api, err := s.service()
	if err != nil {
		return Event{}, err
	}
	if in.Duration <= 0 {
		in.Duration = time.Hour
	}
	start := in.Start.In(s.loc)
	end := start.Add(in.Duration)

	created, err := api.Events.Insert(primaryCalendar, &gcal.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: s.loc.String()},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: s.loc.String()},
		Reminders:   &gcal.EventReminders{UseDefault: true},
	}).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	return toEvent(created), nil
}

// ListEvents returns single events between from and to ordered by start time.
func (s *Service) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	api, err := s.service()
	if err != nil {
		return nil, err
	}
	resp, err := api.Events.List(primaryCalendar).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, toEvent(item))
	}
	return events, nil
}

func (s *Service) service() (*gcal.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.oauth == nil {
		return nil, ErrNotConfigured
	}
	if s.api == nil {
		return nil, ErrNotAuthenticated
	}
	return s.api, nil
}

func (s *Service) restoreToken(ctx context.Context) error {
	if s.opts.TokenPath == "" {
		return nil
	}
	tok, err := LoadToken(s.opts.TokenPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !tok.Valid() && tok.RefreshToken == "" {
		return fmt.Errorf("cached token expired and has no refresh token")
	}

	s.mu.RLock()
	cfg := s.oauth
	s.mu.RUnlock()
	if err := s.connect(ctx, cfg, tok); err != nil {
		return err
	}
	log.Printf("✅ Using cached Google Calendar token")
	return nil
}

func (s *Service) connect(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) error {
	opts := append([]option.ClientOption{option.WithHTTPClient(cfg.Client(context.Background(), tok))}, s.client...)
	api, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create Calendar service: %w", err)
	}
	s.mu.Lock()
	s.token = tok
	s.api = api
	s.mu.Unlock()
	return nil
}

func (s *Service) saveToken(tok *oauth2.Token) error {
	if s.opts.TokenPath == "" {
		return nil
	}
	return SaveToken(s.opts.TokenPath, tok)
}

func oauthConfig(creds *OAuth2Credentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURL(),
		Scopes:       []string{gcal.CalendarScope},
		Endpoint:     google.Endpoint,
	}
}

func toEvent(e *gcal.Event) Event {
	out := Event{ID: e.Id, Summary: e.Summary, Description: e.Description, Link: e.HtmlLink}
	if e.Start != nil {
		out.Start = firstNonEmpty(e.Start.DateTime, e.Start.Date)
	}
	if e.End != nil {
		out.End = firstNonEmpty(e.End.DateTime, e.End.Date)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Package b3test serves canned B3 payloads over httptest.
package b3test

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/sells-group/marketdata-cli/internal/b3"
)

// Server is a fake B3 listed-companies API. Register payloads before use; a
// missing payload answers with "{}" (too short to be a result).
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	pages     map[int]any
	details   map[int]any
	splits    map[string]any
	dividends map[string]map[int]any
	status    map[string]int
	hits      map[string]int
}

// New starts a Server. Close it when done.
func New() *Server {
	s := &Server{
		pages:     map[int]any{},
		details:   map[int]any{},
		splits:    map[string]any{},
		dividends: map[string]map[int]any{},
		status:    map[string]int{},
		hits:      map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URLs points a b3.Client at this server.
func (s *Server) URLs() b3.URLs {
	return b3.URLs{
		ListCompanies:     s.URL + "/list",
		CompanyDetails:    s.URL + "/detail",
		SplitSubscription: s.URL + "/split",
		Dividends:         s.URL + "/dividends",
	}
}

// Page registers a company-list page.
func (s *Server) Page(n int, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[n] = v
}

// Detail registers a company detail. v may be a string of raw JSON.
func (s *Server) Detail(codeCVM int, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[codeCVM] = v
}

// Split registers a split/subscription payload.
func (s *Server) Split(issuing string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.splits[issuing] = v
}

// Dividends registers a dividend page.
func (s *Server) Dividends(tradingName string, page int, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dividends[tradingName] == nil {
		s.dividends[tradingName] = map[int]any{}
	}
	s.dividends[tradingName][page] = v
}

// Fail makes every request to endpoint ("list", "detail", "split",
// "dividends") answer with status.
func (s *Server) Fail(endpoint string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[endpoint] = status
}

// Hits returns how many requests endpoint received.
func (s *Server) Hits(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[endpoint]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	endpoint := parts[0]
	raw, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.hits[endpoint]++
	status := s.status[endpoint]
	var payload any
	switch endpoint {
	case "list":
		var req b3.CompaniesRequest
		_ = json.Unmarshal(raw, &req)
		payload = s.pages[req.PageNumber]
	case "detail":
		var req b3.CompanyRequest
		_ = json.Unmarshal(raw, &req)
		payload = s.details[req.CodeCVM]
	case "split":
		var req b3.SplitSubscriptionRequest
		_ = json.Unmarshal(raw, &req)
		payload = s.splits[req.IssuingCompany]
	case "dividends":
		var req b3.DividendsRequest
		_ = json.Unmarshal(raw, &req)
		payload = s.dividends[req.TradingName][req.PageNumber]
	}
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch v := payload.(type) {
	case nil:
		_, _ = w.Write([]byte("{}"))
	case string:
		_, _ = w.Write([]byte(v))
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Package droptest runs an in-memory Droplink lookalike for contract tests.
// It speaks the same wire protocol as the hosted service: digest-protected
// item routes, anonymous share-link lookups, and the two-step ticketed upload
// against a fake storage bucket.
package droptest

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"
)

// ticketFieldOrder is the order upload tickets list their params in. The
// bucket endpoint rejects form posts that deliver them in any other order,
// which is how the tests pin the order-preservation contract.
var ticketFieldOrder = []string{
	"AWSAccessKeyId",
	"key",
	"acl",
	"policy",
	"signature",
	"success_action_redirect",
}

// item is the service-side wire form of one stored item.
type item struct {
	Slug        string     `json:"-"`
	Href        string     `json:"href"`
	Name        string     `json:"name"`
	Private     bool       `json:"private"`
	URL         string     `json:"url"`
	ContentURL  string     `json:"content_url"`
	ItemType    string     `json:"item_type"`
	ViewCounter int        `json:"view_counter"`
	Icon        string     `json:"icon"`
	RemoteURL   string     `json:"remote_url"`
	RedirectURL string     `json:"redirect_url"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at"`
}

type bookmarkPayload struct {
	Name        string `json:"name"`
	RedirectURL string `json:"redirect_url"`
}

type storedObject struct {
	name        string
	contentType string
	body        []byte
}

// SeededItem describes an item planted directly in the store.
type SeededItem struct {
	Slug string
	Href string
	URL  string
}

// Server is the fake service. Create one with New, point a client at
// BaseURL/ShareURL, and Close it when done.
type Server struct {
	ts   *httptest.Server
	gate *digestGate

	accessKeyID string
	policy      string

	mu       sync.Mutex
	items    map[string]*item
	order    []string
	objects  map[string]storedObject
	findAuth []string

	newSlug func() string
}

// New starts a server that accepts the given account credentials on every
// digest-protected route.
func New(username, password string) *Server {
	newSlug, err := nanoid.Standard(8)
	if err != nil {
		panic(err)
	}

	s := &Server{
		gate:        newDigestGate(username, password),
		accessKeyID: "DRPTEST" + strings.ToUpper(uuid.NewString()[:8]),
		policy: base64.StdEncoding.EncodeToString(
			[]byte(`{"expiration":"2199-01-01T00:00:00Z","conditions":[["starts-with","$key","items/"]]}`)),
		items:   make(map[string]*item),
		objects: make(map[string]storedObject),
		newSlug: newSlug,
	}

	r := chi.NewRouter()
	r.Get("/s/{slug}", s.handleFind)
	r.Post("/bucket", s.handleBucket)
	r.Group(func(r chi.Router) {
		r.Use(s.gate.middleware)
		r.Get("/items", s.handleList)
		r.Post("/items", s.handleCreate)
		r.Get("/items/new", s.handleTicket)
		r.Put("/items/{slug}", s.handleUpdate)
		r.Delete("/items/{slug}", s.handleDelete)
		r.Get("/uploads/verify", s.handleUploadComplete)
	})

	s.ts = httptest.NewServer(r)
	return s
}

// Close shuts the server down.
func (s *Server) Close() {
	s.ts.Close()
}

// BaseURL is the authenticated API endpoint.
func (s *Server) BaseURL() string {
	return s.ts.URL
}

// ShareURL is the public share host. It shares the listener with the API but
// hangs item pages under /s, mirroring how the real service splits hosts.
func (s *Server) ShareURL() string {
	return s.ts.URL + "/s"
}

// SeedBookmark plants a live bookmark without going through the API.
func (s *Server) SeedBookmark(name, redirectURL string) SeededItem {
	it := s.createItem(name, "bookmark", false, redirectURL, "")
	return SeededItem{Slug: it.Slug, Href: it.Href, URL: it.URL}
}

// TrashItem marks an item as deleted without going through the API.
func (s *Server) TrashItem(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[slug]; ok {
		now := time.Now().UTC()
		it.DeletedAt = &now
	}
}

// FindAuthHeaders returns the Authorization header of every share-link
// lookup received so far, empty strings included.
func (s *Server) FindAuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.findAuth)
}

// Object returns the stored body of an uploaded object, keyed by the ticket
// key, along with whether it exists.
func (s *Server) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	return obj.body, ok
}

// ObjectCount reports how many objects the bucket holds.
func (s *Server) ObjectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *Server) createItem(name, itemType string, private bool, redirectURL, remoteURL string) *item {
	s.mu.Lock()
	defer s.mu.Unlock()

	slug := s.newSlug()
	for {
		if _, taken := s.items[slug]; !taken {
			break
		}
		slug = s.newSlug()
	}

	now := time.Now().UTC()
	it := &item{
		Slug:        slug,
		Href:        s.ts.URL + "/items/" + slug,
		Name:        name,
		Private:     private,
		URL:         s.ts.URL + "/s/" + slug,
		ItemType:    itemType,
		Icon:        s.ts.URL + "/images/item_types/" + itemType + ".png",
		RedirectURL: redirectURL,
		RemoteURL:   remoteURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if itemType != "bookmark" {
		it.ContentURL = s.ts.URL + "/content/" + slug
	}

	s.items[slug] = it
	s.order = append(s.order, slug)
	return it
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.findAuth = append(s.findAuth, r.Header.Get("Authorization"))
	it, ok := s.items[chi.URLParam(r, "slug")]
	if !ok || it.DeletedAt != nil {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	it.ViewCounter++
	out := *it
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, &out)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := positiveIntParam(q, "page", 1)
	perPage := positiveIntParam(q, "per_page", 5)
	typeFilter := q.Get("type")
	includeDeleted := q.Get("deleted") == "true"

	s.mu.Lock()
	matched := make([]item, 0, len(s.order))
	for _, slug := range s.order {
		it := s.items[slug]
		if it.DeletedAt != nil && !includeDeleted {
			continue
		}
		if typeFilter != "" && it.ItemType != typeFilter {
			continue
		}
		matched = append(matched, *it)
	}
	s.mu.Unlock()

	start := min((page-1)*perPage, len(matched))
	end := min(start+perPage, len(matched))
	writeJSON(w, http.StatusOK, matched[start:end])
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Item  *bookmarkPayload  `json:"item"`
		Items []bookmarkPayload `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}

	switch {
	case payload.Item != nil:
		it, err := s.createBookmark(*payload.Item)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, it)
	case len(payload.Items) > 0:
		created := make([]*item, 0, len(payload.Items))
		for _, b := range payload.Items {
			it, err := s.createBookmark(b)
			if err != nil {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
				return
			}
			created = append(created, it)
		}
		writeJSON(w, http.StatusOK, created)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "no item payload"})
	}
}

func (s *Server) createBookmark(b bookmarkPayload) (*item, error) {
	if b.Name == "" || b.RedirectURL == "" {
		return nil, fmt.Errorf("name and redirect_url are required")
	}
	return s.createItem(b.Name, "bookmark", false, b.RedirectURL, ""), nil
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Deleted bool `json:"deleted"`
		Item    struct {
			Name      *string         `json:"name"`
			Private   *bool           `json:"private"`
			DeletedAt json.RawMessage `json:"deleted_at"`
		} `json:"item"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}

	s.mu.Lock()
	it, ok := s.items[chi.URLParam(r, "slug")]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if payload.Deleted && string(payload.Item.DeletedAt) == "null" {
		it.DeletedAt = nil
	} else {
		if payload.Item.Name != nil {
			it.Name = *payload.Item.Name
		}
		if payload.Item.Private != nil {
			it.Private = *payload.Item.Private
		}
	}
	it.UpdatedAt = time.Now().UTC()
	out := *it
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, &out)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	it, ok := s.items[chi.URLParam(r, "slug")]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	now := time.Now().UTC()
	it.DeletedAt = &now
	it.UpdatedAt = now
	out := *it
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, &out)
}

// handleTicket issues an upload grant. The params object is written by hand
// because its key order is part of the contract and encoding/json would
// alphabetize a map.
func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	key := "items/" + uuid.NewString()

	redirect := s.ts.URL + "/uploads/verify?key=" + url.QueryEscape(key)
	if p := r.URL.Query().Get("item[private]"); p != "" {
		redirect += "&private=" + url.QueryEscape(p)
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w,
		`{"url":%q,"params":{"AWSAccessKeyId":%q,"key":%q,"acl":"public-read","policy":%q,"signature":%q,"success_action_redirect":%q}}`,
		s.ts.URL+"/bucket", s.accessKeyID, key, s.policy, s.signPolicy(key), redirect)
}

// handleBucket plays the storage host: it checks that the form delivers the
// ticket fields in order with the file last, verifies the policy signature,
// stores the object, and bounces the client to the redirect the form named.
func (s *Server) handleBucket(w http.ResponseWriter, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected multipart/form-data"})
		return
	}

	var names []string
	fields := make(map[string]string)
	var file storedObject

	mr := multipart.NewReader(r.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		data, err := io.ReadAll(part)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		names = append(names, part.FormName())
		if part.FileName() != "" {
			file = storedObject{
				name:        part.FileName(),
				contentType: part.Header.Get("Content-Type"),
				body:        data,
			}
		} else {
			fields[part.FormName()] = string(data)
		}
	}

	expected := append(slices.Clone(ticketFieldOrder), "file")
	if !slices.Equal(names, expected) {
		writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": fmt.Sprintf("form fields out of order: got %v, want %v", names, expected)})
		return
	}
	if fields["signature"] != s.signPolicy(fields["key"]) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "policy signature mismatch"})
		return
	}
	if file.name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file part"})
		return
	}

	s.mu.Lock()
	s.objects[fields["key"]] = file
	s.mu.Unlock()

	w.Header().Set("Location", fields["success_action_redirect"])
	w.WriteHeader(http.StatusSeeOther)
}

// handleUploadComplete is where the bucket redirect lands: the object landed
// in storage, so the service registers the item and returns its wire form.
func (s *Server) handleUploadComplete(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")

	s.mu.Lock()
	obj, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such object"})
		return
	}

	private := r.URL.Query().Get("private") == "true"
	it := s.createItem(obj.name, typeForName(obj.name), private, "", s.ts.URL+"/bucket/"+key)

	s.mu.Lock()
	out := *it
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, &out)
}

func (s *Server) signPolicy(key string) string {
	sum := md5.Sum([]byte(s.policy + ":" + key))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func typeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return "image"
	case ".txt", ".md":
		return "text"
	case ".mp3", ".wav":
		return "audio"
	case ".mp4", ".mov":
		return "video"
	case ".zip", ".tar", ".gz":
		return "archive"
	default:
		return "unknown"
	}
}

func positiveIntParam(q url.Values, name string, fallback int) int {
	v := q.Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

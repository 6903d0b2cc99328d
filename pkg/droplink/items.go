package droplink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/droplink/droplink-go/pkg/formdata"
)

// ItemService implements the item operations. Obtain one from Client.Items.
type ItemService struct {
	client *Client
}

// ListOptions narrows a List call. The zero value (or a nil pointer) lists
// the first page of live items with the account defaults.
type ListOptions struct {
	// Page is the 1-based page number. Zero means the service default.
	Page int

	// PerPage is the page size. Zero means the service default.
	PerPage int

	// Type restricts the listing to a single item type.
	Type ItemType

	// Deleted includes trashed items in the listing.
	Deleted bool
}

// Validate checks the options before any request is made.
func (o *ListOptions) Validate() error {
	if o == nil {
		return nil
	}
	return validation.ValidateStruct(o,
		validation.Field(&o.Page, validation.Min(0)),
		validation.Field(&o.PerPage, validation.Min(0)),
		validation.Field(&o.Type, validation.By(knownItemType)),
	)
}

func knownItemType(value interface{}) error {
	t, _ := value.(ItemType)
	if t == "" || t.IsValid() {
		return nil
	}
	return fmt.Errorf("unknown item type %q, valid types are %v", t, ValidItemTypes())
}

func (o *ListOptions) values() url.Values {
	query := url.Values{}
	if o == nil {
		return query
	}
	if o.Page > 0 {
		query.Set("page", strconv.Itoa(o.Page))
	}
	if o.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(o.PerPage))
	}
	if o.Type != "" {
		query.Set("type", o.Type.String())
	}
	if o.Deleted {
		query.Set("deleted", "true")
	}
	return query
}

// CreateRequest is the closed set of payloads Create accepts: BookmarkParams,
// BookmarkBatch, or *UploadRequest. Nothing outside this package can add a
// fourth.
type CreateRequest interface {
	createKind() string
}

// BookmarkParams describes one bookmark to create.
type BookmarkParams struct {
	Name        string `json:"name"`
	RedirectURL string `json:"redirect_url"`
}

func (BookmarkParams) createKind() string { return "bookmark" }

// Validate checks the bookmark before any request is made.
func (p BookmarkParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.RedirectURL, validation.Required),
	)
}

// BookmarkBatch creates several bookmarks in a single call.
type BookmarkBatch []BookmarkParams

func (BookmarkBatch) createKind() string { return "bookmarks" }

// Validate checks every bookmark in the batch, accumulating failures so the
// caller sees all of them at once.
func (b BookmarkBatch) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("bookmark batch is empty")
	}
	var result *multierror.Error
	for i, params := range b {
		if err := params.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("bookmark %d: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}

// UploadRequest uploads a local file.
type UploadRequest struct {
	// Path names the file to upload. It is read through the client's
	// filesystem when the payload is built, not before.
	Path string

	// Private overrides the account's default visibility when non-nil.
	Private *bool
}

func (*UploadRequest) createKind() string { return "upload" }

// UpdateParams carries the mutable item attributes. Private is a pointer so
// an explicit false survives encoding; nil means "leave it alone".
type UpdateParams struct {
	Name    string `json:"name,omitempty"`
	Private *bool  `json:"private,omitempty"`
}

// Find fetches one item by the id in its share link. The lookup goes to the
// public share host and carries no credentials, matching how a share link
// behaves in a browser.
func (s *ItemService) Find(ctx context.Context, id string) (*Item, error) {
	resp, err := s.client.doJSON(ctx, s.client.anon, http.MethodGet, s.client.shareEndpoint(id), nil, nil)
	if err != nil {
		return nil, err
	}
	return s.decodeItem(resp)
}

// List fetches the account's items, preserving the order the service returns
// them in. Trashed items only appear when opts.Deleted is set.
func (s *ItemService) List(ctx context.Context, opts *ListOptions) ([]*Item, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid list options: %w", err)
	}
	resp, err := s.client.doJSON(ctx, s.client.authed, http.MethodGet, s.client.endpoint("/items"), opts.values(), nil)
	if err != nil {
		return nil, err
	}
	return s.decodeItems(resp)
}

// Create dispatches on the concrete request type and returns the created
// items: one for a bookmark or upload, one per bookmark for a batch. A nil or
// foreign request returns ErrInvalidCreateRequest without touching the
// network.
func (s *ItemService) Create(ctx context.Context, req CreateRequest) ([]*Item, error) {
	switch r := req.(type) {
	case BookmarkParams:
		item, err := s.CreateBookmark(ctx, r)
		if err != nil {
			return nil, err
		}
		return []*Item{item}, nil
	case BookmarkBatch:
		return s.CreateBookmarks(ctx, r)
	case *UploadRequest:
		item, err := s.Upload(ctx, r)
		if err != nil {
			return nil, err
		}
		return []*Item{item}, nil
	default:
		return nil, ErrInvalidCreateRequest
	}
}

// CreateBookmark creates a single bookmark item.
func (s *ItemService) CreateBookmark(ctx context.Context, params BookmarkParams) (*Item, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bookmark: %w", err)
	}

	body := map[string]BookmarkParams{"item": params}
	resp, err := s.client.doJSON(ctx, s.client.authed, http.MethodPost, s.client.endpoint("/items"), nil, body)
	if err != nil {
		return nil, err
	}
	return s.decodeItem(resp)
}

// CreateBookmarks creates every bookmark in the batch with one call. The
// returned items line up with the batch order.
func (s *ItemService) CreateBookmarks(ctx context.Context, batch BookmarkBatch) ([]*Item, error) {
	if err := batch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bookmark batch: %w", err)
	}

	body := map[string]BookmarkBatch{"items": batch}
	resp, err := s.client.doJSON(ctx, s.client.authed, http.MethodPost, s.client.endpoint("/items"), nil, body)
	if err != nil {
		return nil, err
	}
	return s.decodeItems(resp)
}

// Upload sends a local file through the two-step protocol: fetch an upload
// ticket, then POST the ticket's fields plus the file to the URL the ticket
// names. A failed ticket fetch short-circuits with the failure untouched; the
// file is never opened and the second request never happens. Each call
// consumes exactly one ticket.
func (s *ItemService) Upload(ctx context.Context, req *UploadRequest) (*Item, error) {
	if req == nil {
		return nil, ErrInvalidCreateRequest
	}

	query := url.Values{}
	if req.Private != nil {
		query.Set("item[private]", strconv.FormatBool(*req.Private))
	}

	resp, err := s.client.doJSON(ctx, s.client.authed, http.MethodGet, s.client.endpoint("/items/new"), query, nil)
	if err != nil {
		return nil, err
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var ticket uploadTicket
	if err := json.Unmarshal(body, &ticket); err != nil {
		return nil, fmt.Errorf("failed to decode upload ticket: %w", err)
	}
	if ticket.URL == "" {
		return nil, fmt.Errorf("upload ticket names no destination URL")
	}

	form := formdata.New(s.client.files)
	for _, field := range ticket.Params {
		form.AddField(field.Name, field.Value)
	}
	form.SetFile("file", req.Path)

	payload, contentType, err := form.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to build upload payload: %w", err)
	}

	httpReq, err := s.client.newRequest(ctx, http.MethodPost, ticket.URL, nil, payload)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)

	s.client.logger.Info("uploading file", "path", req.Path, "url", ticket.URL)

	sendResp, err := s.client.do(s.client.authed, httpReq)
	if err != nil {
		return nil, err
	}
	return s.decodeItem(sendResp)
}

// Update renames an item or changes its visibility. href is the canonical
// resource URL the service assigned to the item.
func (s *ItemService) Update(ctx context.Context, href string, params UpdateParams) (*Item, error) {
	if href == "" {
		return nil, ErrMissingHref
	}
	body := map[string]UpdateParams{"item": params}
	resp, err := s.client.doJSON(ctx, s.client.authed, http.MethodPut, href, nil, body)
	if err != nil {
		return nil, err
	}
	return s.decodeItem(resp)
}

// Delete moves an item to the trash. The service keeps trashed items around,
// so this is reversible with Recover.
func (s *ItemService) Delete(ctx context.Context, href string) (*Item, error) {
	if href == "" {
		return nil, ErrMissingHref
	}
	resp, err := s.client.doJSON(ctx, s.client.authed, http.MethodDelete, href, nil, nil)
	if err != nil {
		return nil, err
	}
	return s.decodeItem(resp)
}

// Recover pulls an item back out of the trash by clearing its deletion mark.
func (s *ItemService) Recover(ctx context.Context, href string) (*Item, error) {
	if href == "" {
		return nil, ErrMissingHref
	}
	resp, err := s.client.doJSON(ctx, s.client.authed, http.MethodPut, href, nil, recoverBody{Deleted: true})
	if err != nil {
		return nil, err
	}
	return s.decodeItem(resp)
}

// recoverBody is the exact wire shape the service expects when untrashing:
// the deleted flag plus an explicit null deleted_at.
type recoverBody struct {
	Deleted bool        `json:"deleted"`
	Item    recoverItem `json:"item"`
}

type recoverItem struct {
	DeletedAt *Timestamp `json:"deleted_at"`
}

// uploadTicket is the response to GET /items/new: a one-time grant naming the
// storage URL and the form fields the storage host expects. The policy
// signature covers the fields in order, so params decode into an ordered
// slice rather than a map.
type uploadTicket struct {
	URL    string       `json:"url"`
	Params ticketParams `json:"params"`
}

// ticketParams preserves the key order of the ticket's params object.
type ticketParams []formdata.Field

// UnmarshalJSON walks the object token by token; unmarshaling into a map
// would throw the order away.
func (p *ticketParams) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid ticket params: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("ticket params must be a JSON object, got %v", tok)
	}

	fields := make([]formdata.Field, 0, 8)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("invalid ticket params: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("invalid ticket params key %v", keyTok)
		}

		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("invalid ticket param %q: %w", key, err)
		}
		fields = append(fields, formdata.Field{Name: key, Value: ticketValueString(value)})
	}

	*p = fields
	return nil
}

// ticketValueString renders a ticket param value the way it goes on the wire.
// Tickets mostly carry strings, but numbers and booleans show up too.
func ticketValueString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		encoded, _ := json.Marshal(v)
		return string(encoded)
	}
}

package droplink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
)

// ItemType classifies what an item points at. The service derives it from a
// file's content type at upload time; bookmarks always report
// ItemTypeBookmark.
type ItemType string

const (
	ItemTypeBookmark ItemType = "bookmark"
	ItemTypeImage    ItemType = "image"
	ItemTypeText     ItemType = "text"
	ItemTypeArchive  ItemType = "archive"
	ItemTypeAudio    ItemType = "audio"
	ItemTypeVideo    ItemType = "video"
	ItemTypeUnknown  ItemType = "unknown"
)

// ValidItemTypes returns all item types the service is known to emit.
func ValidItemTypes() []ItemType {
	return []ItemType{
		ItemTypeBookmark,
		ItemTypeImage,
		ItemTypeText,
		ItemTypeArchive,
		ItemTypeAudio,
		ItemTypeVideo,
		ItemTypeUnknown,
	}
}

// IsValid returns true if the item type is one the service emits.
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeBookmark, ItemTypeImage, ItemTypeText, ItemTypeArchive,
		ItemTypeAudio, ItemTypeVideo, ItemTypeUnknown:
		return true
	}
	return false
}

// String returns the wire value of the item type.
func (t ItemType) String() string {
	return string(t)
}

// Timestamp is a time.Time that decodes every timestamp rendering the service
// has ever emitted. Older API hosts produce Rails-style strings such as
// "2012/04/01 19:30:48 +0000" while newer ones produce RFC 3339, so decoding
// goes through dateparse rather than a fixed layout. A JSON null or empty
// string decodes to the zero Timestamp.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp is not a JSON string: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}

	parsed, err := dateparse.ParseAny(s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler. The zero Timestamp marshals to null,
// which is how the service spells "not set".
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.Format(time.RFC3339))), nil
}

// Item is one shared resource: a bookmark or an uploaded file. Items decoded
// from service responses hold a reference back to their ItemService, so the
// instance-level operations can act on them directly.
type Item struct {
	// Href is the canonical resource URL. Every instance-level operation
	// addresses the item through it.
	Href string `json:"href"`

	// Name is the display name: the file name for uploads, the given name
	// for bookmarks.
	Name string `json:"name"`

	// Private reports whether the share link is obscured from guessing.
	Private bool `json:"private"`

	// URL is the short public share link.
	URL string `json:"url"`

	// ContentURL serves the raw content directly.
	ContentURL string `json:"content_url"`

	// ItemType classifies the item, e.g. "bookmark" or "image".
	ItemType ItemType `json:"item_type"`

	// ViewCounter counts visits to the share link.
	ViewCounter int `json:"view_counter"`

	// Icon is the thumbnail or type icon URL.
	Icon string `json:"icon"`

	// RemoteURL addresses the stored object on the storage host. Empty for
	// bookmarks.
	RemoteURL string `json:"remote_url"`

	// RedirectURL is the destination a bookmark forwards to. Empty for
	// uploads.
	RedirectURL string `json:"redirect_url"`

	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`

	// DeletedAt is nil for live items and set once the item is trashed.
	DeletedAt *Timestamp `json:"deleted_at"`

	service *ItemService
}

// Trashed reports whether the item currently sits in the trash.
func (it *Item) Trashed() bool {
	return it.DeletedAt != nil
}

// Update renames the item or changes its visibility through the item's href.
func (it *Item) Update(ctx context.Context, params UpdateParams) (*Item, error) {
	svc, err := it.owner()
	if err != nil {
		return nil, err
	}
	return svc.Update(ctx, it.Href, params)
}

// Delete moves the item to the trash through the item's href.
func (it *Item) Delete(ctx context.Context) (*Item, error) {
	svc, err := it.owner()
	if err != nil {
		return nil, err
	}
	return svc.Delete(ctx, it.Href)
}

// Recover pulls the item back out of the trash through the item's href.
func (it *Item) Recover(ctx context.Context) (*Item, error) {
	svc, err := it.owner()
	if err != nil {
		return nil, err
	}
	return svc.Recover(ctx, it.Href)
}

func (it *Item) owner() (*ItemService, error) {
	if it.service == nil {
		return nil, ErrDetachedItem
	}
	if it.Href == "" {
		return nil, ErrMissingHref
	}
	return it.service, nil
}

package droplink

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// The response mapper turns raw HTTP responses into items. Every operation
// funnels through it, so the fail-soft contract holds uniformly: a 2xx body
// decodes into items attached to the owning service, anything else surfaces
// as a *RequestFailure carrying the verbatim status and body. A null where
// an item is expected is a decode error, never a zero-valued item.

// decodeItem maps a single-object response onto one Item.
func (s *ItemService) decodeItem(resp *http.Response) (*Item, error) {
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var item *Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("failed to decode item: body is null")
	}
	item.service = s
	return item, nil
}

// decodeItems maps an array response onto items, preserving server order.
func (s *ItemService) decodeItems(resp *http.Response) ([]*Item, error) {
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var items []*Item
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("failed to decode items: element %d is null", i)
		}
		item.service = s
	}
	return items, nil
}

// readBody drains and closes the response body. Non-2xx responses come back
// as a *RequestFailure with the body untouched.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestFailure{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
		}
	}
	return body, nil
}

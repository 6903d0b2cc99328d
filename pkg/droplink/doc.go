// Package droplink is a client for the Droplink file-sharing API.
//
// Droplink stores two kinds of items, uploaded files and bookmarks, and hands
// each one a short public share link. This package maps those items onto Go
// values and exposes the full resource lifecycle: find, list, create, update,
// trash, and recover.
//
// # Usage
//
//	client, err := droplink.New(&droplink.Config{
//	    Username: "mia@example.com",
//	    Password: "secret",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Bookmark a page.
//	items, err := client.Items().Create(ctx, droplink.BookmarkParams{
//	    Name:        "Release notes",
//	    RedirectURL: "https://example.com/releases/1.4",
//	})
//
//	// Upload a file. The storage ticket handshake happens behind the call.
//	item, err := client.Items().Upload(ctx, &droplink.UploadRequest{
//	    Path: "/tmp/screenshot.png",
//	})
//
//	// Items decoded from responses can act on themselves.
//	trashed, err := item.Delete(ctx)
//	restored, err := trashed.Recover(ctx)
//
// # Authentication
//
// Every call authenticates with HTTP digest except Find, which resolves a
// public share link exactly like a browser would: anonymously.
//
// # Failure Handling
//
// The client never panics on service errors and never retries. A non-2xx
// response surfaces as a *RequestFailure carrying the verbatim status and
// body; transport faults (DNS, timeouts, canceled contexts) come back as
// ordinary wrapped errors. Use AsRequestFailure to tell them apart.
package droplink

package droplink

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droplink/droplink-go/internal/droptest"
)

// The contract tests run the client against an in-memory service that speaks
// the real wire protocol, digest challenges and ticketed uploads included.

const (
	contractUser = "mia@example.com"
	contractPass = "tr4sh-p4nda"
)

func newContractClient(t *testing.T, srv *droptest.Server, fs afero.Fs) *Client {
	t.Helper()

	client, err := New(&Config{
		Username: contractUser,
		Password: contractPass,
		BaseURL:  srv.BaseURL(),
		ShareURL: srv.ShareURL(),
		Files:    fs,
	})
	require.NoError(t, err)
	return client
}

func TestContractAuthentication(t *testing.T) {
	srv := droptest.New(contractUser, contractPass)
	defer srv.Close()
	srv.SeedBookmark("docs", "https://example.com/docs")

	t.Run("valid credentials pass the digest challenge", func(t *testing.T) {
		client := newContractClient(t, srv, nil)

		items, err := client.Items().List(context.Background(), nil)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("wrong password fails softly with a 401", func(t *testing.T) {
		client, err := New(&Config{
			Username: contractUser,
			Password: "not-the-password",
			BaseURL:  srv.BaseURL(),
			ShareURL: srv.ShareURL(),
		})
		require.NoError(t, err)

		_, err = client.Items().List(context.Background(), nil)
		require.Error(t, err)

		failure, ok := AsRequestFailure(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, failure.StatusCode)
	})
}

func TestContractFindIsAnonymous(t *testing.T) {
	srv := droptest.New(contractUser, contractPass)
	defer srv.Close()
	seeded := srv.SeedBookmark("release notes", "https://example.com/releases")

	client := newContractClient(t, srv, nil)

	item, err := client.Items().Find(context.Background(), seeded.Slug)
	require.NoError(t, err)

	assert.Equal(t, seeded.Href, item.Href)
	assert.Equal(t, seeded.URL, item.URL)
	assert.Equal(t, "release notes", item.Name)
	assert.Equal(t, ItemTypeBookmark, item.ItemType)
	assert.Equal(t, "https://example.com/releases", item.RedirectURL)
	assert.Equal(t, 1, item.ViewCounter, "share-link visits bump the view counter")

	for _, auth := range srv.FindAuthHeaders() {
		assert.Empty(t, auth, "share-link lookups must not carry credentials")
	}
}

func TestContractFindUnknownID(t *testing.T) {
	srv := droptest.New(contractUser, contractPass)
	defer srv.Close()

	client := newContractClient(t, srv, nil)

	_, err := client.Items().Find(context.Background(), "nope1234")
	require.Error(t, err)

	failure, ok := AsRequestFailure(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, failure.StatusCode)
}

func TestContractBookmarkLifecycle(t *testing.T) {
	srv := droptest.New(contractUser, contractPass)
	defer srv.Close()

	client := newContractClient(t, srv, nil)
	ctx := context.Background()

	created, err := client.Items().Create(ctx, BookmarkParams{
		Name:        "weekly report",
		RedirectURL: "https://example.com/reports/34",
	})
	require.NoError(t, err)
	require.Len(t, created, 1)

	item := created[0]
	assert.NotEmpty(t, item.Href)
	assert.Equal(t, ItemTypeBookmark, item.ItemType)
	assert.False(t, item.Trashed())

	renamed, err := item.Update(ctx, UpdateParams{Name: "weekly report, final"})
	require.NoError(t, err)
	assert.Equal(t, "weekly report, final", renamed.Name)
	assert.Equal(t, item.Href, renamed.Href)

	trashed, err := renamed.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, trashed.Trashed())

	live, err := client.Items().List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, live, "trashed items stay out of the default listing")

	withTrash, err := client.Items().List(ctx, &ListOptions{Deleted: true})
	require.NoError(t, err)
	assert.Len(t, withTrash, 1)

	restored, err := trashed.Recover(ctx)
	require.NoError(t, err)
	assert.False(t, restored.Trashed())
	assert.Nil(t, restored.DeletedAt)

	live, err = client.Items().List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestContractCreateBookmarksKeepsOrder(t *testing.T) {
	srv := droptest.New(contractUser, contractPass)
	defer srv.Close()

	client := newContractClient(t, srv, nil)

	batch := BookmarkBatch{
		{Name: "first", RedirectURL: "https://example.com/1"},
		{Name: "second", RedirectURL: "https://example.com/2"},
		{Name: "third", RedirectURL: "https://example.com/3"},
	}
	items, err := client.Items().Create(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, batch[i].Name, item.Name)
		assert.Equal(t, batch[i].RedirectURL, item.RedirectURL)
	}
}

func TestContractUpload(t *testing.T) {
	srv := droptest.New(contractUser, contractPass)
	defer srv.Close()

	fileContent := []byte{0x89, 'P', 'N', 'G', 1, 2, 3, 4}
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/shots/residue.png", fileContent, 0o644))

	client := newContractClient(t, srv, fs)

	// The fake bucket rejects posts whose fields arrive out of ticket order,
	// so a passing upload proves the order survived end to end.
	item, err := client.Items().Upload(context.Background(), &UploadRequest{
		Path:    "/shots/residue.png",
		Private: boolPtr(true),
	})
	require.NoError(t, err)

	assert.Equal(t, "residue.png", item.Name)
	assert.Equal(t, ItemTypeImage, item.ItemType)
	assert.True(t, item.Private)
	assert.NotEmpty(t, item.Href)
	assert.NotEmpty(t, item.ContentURL)

	require.True(t, strings.HasPrefix(item.RemoteURL, srv.BaseURL()+"/bucket/"))
	key := strings.TrimPrefix(item.RemoteURL, srv.BaseURL()+"/bucket/")
	stored, ok := srv.Object(key)
	require.True(t, ok)
	assert.Equal(t, fileContent, stored, "the stored object must match the local file byte for byte")
}

func TestContractUploadConsumesOneTicketPerCall(t *testing.T) {
	srv := droptest.New(contractUser, contractPass)
	defer srv.Close()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/notes/a.txt", []byte("alpha"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/notes/b.txt", []byte("bravo"), 0o644))

	client := newContractClient(t, srv, fs)
	ctx := context.Background()

	first, err := client.Items().Upload(ctx, &UploadRequest{Path: "/notes/a.txt"})
	require.NoError(t, err)
	second, err := client.Items().Upload(ctx, &UploadRequest{Path: "/notes/b.txt"})
	require.NoError(t, err)

	assert.NotEqual(t, first.RemoteURL, second.RemoteURL)
	assert.Equal(t, 2, srv.ObjectCount())
}

func TestContractListFilters(t *testing.T) {
	srv := droptest.New(contractUser, contractPass)
	defer srv.Close()

	srv.SeedBookmark("alpha", "https://example.com/a")
	srv.SeedBookmark("bravo", "https://example.com/b")
	charlie := srv.SeedBookmark("charlie", "https://example.com/c")
	srv.TrashItem(charlie.Slug)

	client := newContractClient(t, srv, nil)
	ctx := context.Background()

	t.Run("default excludes trash", func(t *testing.T) {
		items, err := client.Items().List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "alpha", items[0].Name)
		assert.Equal(t, "bravo", items[1].Name)
	})

	t.Run("deleted includes trash", func(t *testing.T) {
		items, err := client.Items().List(ctx, &ListOptions{Deleted: true})
		require.NoError(t, err)
		assert.Len(t, items, 3)
	})

	t.Run("type filter", func(t *testing.T) {
		items, err := client.Items().List(ctx, &ListOptions{Type: ItemTypeBookmark})
		require.NoError(t, err)
		assert.Len(t, items, 2)

		items, err = client.Items().List(ctx, &ListOptions{Type: ItemTypeImage})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("pagination", func(t *testing.T) {
		items, err := client.Items().List(ctx, &ListOptions{Page: 2, PerPage: 1})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "bravo", items[0].Name)
	})
}

func TestContractUpdateVisibility(t *testing.T) {
	srv := droptest.New(contractUser, contractPass)
	defer srv.Close()
	seeded := srv.SeedBookmark("docs", "https://example.com/docs")

	client := newContractClient(t, srv, nil)
	ctx := context.Background()

	hidden, err := client.Items().Update(ctx, seeded.Href, UpdateParams{Private: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, hidden.Private)

	shown, err := client.Items().Update(ctx, seeded.Href, UpdateParams{Private: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, shown.Private)
}

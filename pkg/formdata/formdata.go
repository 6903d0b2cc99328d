// Package formdata builds multipart/form-data payloads for ticketed uploads.
//
// Storage hosts that accept browser-style POST uploads validate the request
// against a signed policy, and some of them check the form fields in the
// exact order the ticket listed them. A plain map would shuffle that order,
// so Form keeps fields as an ordered slice and writes them out verbatim, with
// the file part always last.
package formdata

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"path/filepath"

	"github.com/spf13/afero"
)

// Field is a single literal form field.
type Field struct {
	Name  string
	Value string
}

// Form accumulates ordered literal fields plus at most one file reference.
// The file is not touched until Encode, so a Form can be built from a ticket
// before the caller knows whether the upload will go ahead.
type Form struct {
	fs        afero.Fs
	fields    []Field
	fileField string
	filePath  string
}

// New returns an empty form that reads file content from fs.
func New(fs afero.Fs) *Form {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Form{fs: fs}
}

// AddField appends a literal field. Insertion order is preserved through
// Encode.
func (f *Form) AddField(name, value string) {
	f.fields = append(f.fields, Field{Name: name, Value: value})
}

// Fields returns the literal fields in insertion order.
func (f *Form) Fields() []Field {
	return f.fields
}

// SetFile records the file part. The path is resolved against the form's
// filesystem during Encode, not here.
func (f *Form) SetFile(field, path string) {
	f.fileField = field
	f.filePath = path
}

// Encode writes every literal field in insertion order, then the file part,
// and returns the body together with the Content-Type header value carrying
// the boundary.
func (f *Form) Encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, fld := range f.fields {
		if err := w.WriteField(fld.Name, fld.Value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %q: %w", fld.Name, err)
		}
	}

	if f.fileField != "" {
		if err := f.writeFile(w); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

func (f *Form) writeFile(w *multipart.Writer) error {
	file, err := f.fs.Open(f.filePath)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", f.filePath, err)
	}
	defer file.Close()

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, f.fileField, filepath.Base(f.filePath)))
	header.Set("Content-Type", contentTypeForPath(f.filePath))

	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to read %q: %w", f.filePath, err)
	}
	return nil
}

// contentTypeForPath guesses the part's content type from the file extension.
func contentTypeForPath(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

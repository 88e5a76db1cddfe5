package fileserver

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 1, 2, 3, 4}

func TestSaveAndServe(t *testing.T) {
	s := New(t.TempDir(), 10<<20)
	res, err := s.Save(context.Background(), "class photo.png", "", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.FileURL, URLPrefix))
	assert.Equal(t, "class photo.png", res.FileName)
	assert.Equal(t, "image/png", res.FileType)

	name := strings.TrimPrefix(res.FileURL, URLPrefix)
	rec := httptest.NewRecorder()
	s.Serve(rec, httptest.NewRequest(http.MethodGet, res.FileURL+"?name=photo.png", nil), name)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngHeader, rec.Body.Bytes())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "photo.png")
}

func TestSaveRejects(t *testing.T) {
	s := New(t.TempDir(), 10<<20)
	_, err := s.Save(context.Background(), "run.exe", "", strings.NewReader("MZ"))
	require.ErrorIs(t, err, ErrTypeNotAllowed)
	_, err = s.Save(context.Background(), "fake.pdf", "", strings.NewReader("not a pdf"))
	require.ErrorIs(t, err, ErrContentMismatch)
}

func TestServeMissing(t *testing.T) {
	s := New(t.TempDir(), 10<<20)
	rec := httptest.NewRecorder()
	s.Serve(rec, httptest.NewRequest(http.MethodGet, "/uploads/nope.png", nil), "../nope.png")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadMultipart(t *testing.T) {
	s := New(t.TempDir(), 10<<20)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("lecture notes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Upload(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"fileName":"notes.txt"`)
	assert.Contains(t, rec.Body.String(), `"fileUrl":"/uploads/`)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	s.Upload(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/files"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for y := range 12 {
		for x := range 16 {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 20), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// multipartBody builds an upload body with one file under field.
func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	fw.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, identity *database.Identity, field string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	return e.uploadNamed(t, identity, field, "Holiday.PNG", data)
}

func (e *testEnv) uploadNamed(t *testing.T, identity *database.Identity, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, field, filename, data)
	req := requestAs(t, "POST", "/api/v1/files", body, identity)
	req.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	e.files.Upload(recorder, req)
	return recorder
}

func TestFilesHandler_UploadListDownloadDelete(t *testing.T) {
	env := newTestEnv(t)
	alice := &database.Identity{ID: "alice"}
	data := testPNG(t)

	recorder := env.upload(t, alice, "file", data)
	assertStatusCode(t, recorder, http.StatusCreated)
	var uploaded FileResponse
	parseJSONResponse(t, recorder, &uploaded)

	if uploaded.OriginalName != "Holiday.PNG" {
		t.Errorf("OriginalName = %q, want Holiday.PNG", uploaded.OriginalName)
	}
	if uploaded.Filename != uploaded.ID+".png" {
		t.Errorf("Filename = %q, want %s.png", uploaded.Filename, uploaded.ID)
	}
	if uploaded.MimeType != "image/png" || uploaded.Width != 16 || uploaded.Height != 12 {
		t.Errorf("unexpected metadata %+v", uploaded)
	}
	if uploaded.Type != "image" {
		t.Errorf("Type = %q, want image", uploaded.Type)
	}
	if uploaded.URL != "/api/v1/files/"+uploaded.ID {
		t.Errorf("URL = %q", uploaded.URL)
	}

	// List
	recorder = httptest.NewRecorder()
	env.files.List(recorder, requestAs(t, "GET", "/api/v1/files", nil, alice))
	assertStatusCode(t, recorder, http.StatusOK)
	var listed []FileResponse
	parseJSONResponse(t, recorder, &listed)
	if len(listed) != 1 || listed[0].ID != uploaded.ID {
		t.Errorf("List() = %+v", listed)
	}

	// Download
	recorder = httptest.NewRecorder()
	req := requestWithChiParams(requestAs(t, "GET", "/api/v1/files/"+uploaded.ID, nil, alice), map[string]string{"id": uploaded.ID})
	env.files.Download(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)
	if !bytes.Equal(recorder.Body.Bytes(), data) {
		t.Error("downloaded content differs from upload")
	}
	if got := recorder.Header().Get("Cache-Control"); got != "private, max-age=31536000" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := recorder.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q", got)
	}

	// Thumbnail
	recorder = httptest.NewRecorder()
	req = requestWithChiParams(requestAs(t, "GET", "/api/v1/files/"+uploaded.ID+"/thumb?size=8", nil, alice), map[string]string{"id": uploaded.ID})
	env.files.Thumbnail(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)
	if got := recorder.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("thumbnail Content-Type = %q", got)
	}

	// Delete
	recorder = httptest.NewRecorder()
	req = requestWithChiParams(requestAs(t, "DELETE", "/api/v1/files/"+uploaded.ID, nil, alice), map[string]string{"id": uploaded.ID})
	env.files.Delete(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)
	if env.blobs.Len() != 0 {
		t.Errorf("blob store still holds %d objects", env.blobs.Len())
	}
	if f, _ := env.store.GetFile(context.Background(), uploaded.ID); f != nil {
		t.Error("metadata still present after delete")
	}
}

func TestFilesHandler_UploadPhotoField(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.upload(t, &database.Identity{ID: "alice"}, "photo", testPNG(t))

	assertStatusCode(t, recorder, http.StatusCreated)
}

func TestFilesHandler_UploadRejects(t *testing.T) {
	tests := []struct {
		name        string
		field       string
		data        []byte
		wantStatus  int
		wantMessage string
	}{
		{"binary file", "file", []byte{0x00, 0x01, 0x02, 0x03, 0xff}, http.StatusBadRequest, files.ErrUnsupportedType.Error()},
		{"wrong field", "document", []byte("x"), http.StatusBadRequest, "no file provided"},
		{"empty file", "file", nil, http.StatusBadRequest, "file is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			recorder := env.upload(t, &database.Identity{ID: "alice"}, tt.field, tt.data)

			assertStatusCode(t, recorder, tt.wantStatus)
			assertJSONError(t, recorder, tt.wantMessage)
			if env.blobs.Len() != 0 {
				t.Error("rejected upload reached the blob store")
			}
		})
	}
}

func TestFilesHandler_Ownership(t *testing.T) {
	env := newTestEnv(t)
	alice := &database.Identity{ID: "alice"}
	mallory := &database.Identity{ID: "mallory"}

	recorder := env.upload(t, alice, "file", testPNG(t))
	assertStatusCode(t, recorder, http.StatusCreated)
	var uploaded FileResponse
	parseJSONResponse(t, recorder, &uploaded)

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"foreign file", uploaded.ID, http.StatusUnauthorized},
		{"missing file", "does-not-exist", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := map[string]string{"id": tt.id}

			recorder := httptest.NewRecorder()
			env.files.Download(recorder, requestWithChiParams(requestAs(t, "GET", "/api/v1/files/"+tt.id, nil, mallory), params))
			assertStatusCode(t, recorder, tt.wantStatus)

			recorder = httptest.NewRecorder()
			env.files.Delete(recorder, requestWithChiParams(requestAs(t, "DELETE", "/api/v1/files/"+tt.id, nil, mallory), params))
			assertStatusCode(t, recorder, tt.wantStatus)
		})
	}

	if env.blobs.Len() != 1 {
		t.Error("foreign delete removed the blob")
	}

	recorder = httptest.NewRecorder()
	env.files.List(recorder, requestAs(t, "GET", "/api/v1/files", nil, mallory))
	var listed []FileResponse
	parseJSONResponse(t, recorder, &listed)
	if len(listed) != 0 {
		t.Errorf("mallory sees %d files, want 0", len(listed))
	}
}

func TestFilesHandler_ThumbnailInvalidSize(t *testing.T) {
	env := newTestEnv(t)

	recorder := httptest.NewRecorder()
	req := requestWithChiParams(requestAs(t, "GET", "/api/v1/files/x/thumb?size=abc", nil, &database.Identity{ID: "alice"}), map[string]string{"id": "x"})
	env.files.Thumbnail(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestFilesHandler_UploadDocument(t *testing.T) {
	env := newTestEnv(t)
	alice := &database.Identity{ID: "alice"}

	recorder := env.uploadNamed(t, alice, "file", "cv.pdf", []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n"))
	assertStatusCode(t, recorder, http.StatusCreated)
	var uploaded FileResponse
	parseJSONResponse(t, recorder, &uploaded)

	if uploaded.Type != "document" || uploaded.MimeType != "application/pdf" {
		t.Errorf("uploaded = %+v, want a PDF document", uploaded)
	}
	if uploaded.Width != 0 || uploaded.Height != 0 || uploaded.DuplicateOf != "" {
		t.Errorf("document carries image metadata: %+v", uploaded)
	}

	recorder = httptest.NewRecorder()
	req := requestWithChiParams(requestAs(t, "GET", "/api/v1/files/"+uploaded.ID+"/thumb", nil, alice), map[string]string{"id": uploaded.ID})
	env.files.Thumbnail(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "thumbnails are only available for images")
}

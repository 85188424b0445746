package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/assettrack/internal/sheet"
)

func multipartRequest(t *testing.T, field, filename string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSaveUploadWritesTempFile(t *testing.T) {
	dir := t.TempDir()
	req := multipartRequest(t, "file", "orders.xlsx", []byte("payload"))

	path, cleanup, err := SaveUpload(req, "file", dir, 1<<20, MimeXLSX)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))

	cleanup()
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestSaveUploadRejectsWrongType(t *testing.T) {
	req := multipartRequest(t, "file", "orders.csv", []byte("a,b"))
	_, _, err := SaveUpload(req, "file", t.TempDir(), 1<<20, MimeXLSX)
	require.ErrorIs(t, err, ErrValidation)
}

func TestSaveUploadRejectsOversizedBody(t *testing.T) {
	req := multipartRequest(t, "file", "po.pdf", bytes.Repeat([]byte("x"), 4096))
	_, _, err := SaveUpload(req, "file", t.TempDir(), 512, MimePDF)
	require.ErrorIs(t, err, ErrValidation)
}

func TestSaveUploadMissingField(t *testing.T) {
	req := multipartRequest(t, "other", "po.pdf", []byte("x"))
	_, _, err := SaveUpload(req, "file", t.TempDir(), 1<<20, MimePDF)
	require.ErrorIs(t, err, ErrValidation)
}

func TestRespondErrorStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("bad: %w", ErrValidation), http.StatusBadRequest},
		{&sheet.MissingColumnsError{Columns: []string{"Vendor"}}, http.StatusBadRequest},
		{fmt.Errorf("po: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("po: %w", ErrDuplicate), http.StatusConflict},
		{ErrLocked, http.StatusConflict},
		{fmt.Errorf("receive: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.want, rr.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestRespondErrorInternalKeepsUnderlyingMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("failed to receive items: %w", errors.New("insert asset: connection reset")))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "failed to receive items: insert asset: connection reset", body.Detail)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"x","extra":1}`))
	var target struct {
		Name string `json:"name"`
	}
	require.ErrorIs(t, DecodeJSON(req, &target), ErrValidation)
}

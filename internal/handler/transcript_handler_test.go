package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univkit/registrar-api/pkg/storage"
)

func newDownloadFixture(t *testing.T) (*TranscriptHandler, *storage.SignedURLSigner) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save("transcripts/stu-1.pdf", []byte("%PDF-1.4 test"))
	require.NoError(t, err)

	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewTranscriptHandler(nil, store, signer), signer
}

func TestTranscriptHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, signer := newDownloadFixture(t)

	token, _, err := signer.Generate("stu-1", "transcripts/stu-1.pdf")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/transcripts/download?token="+token, nil)
	c.Request = req

	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "stu-1.pdf")
}

func TestTranscriptHandlerDownloadMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newDownloadFixture(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/transcripts/download", nil)
	c.Request = req

	h.Download(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTranscriptHandlerDownloadBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newDownloadFixture(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/transcripts/download?token=not.a.real.token", nil)
	c.Request = req

	h.Download(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

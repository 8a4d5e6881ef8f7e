package server

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/resoli/api.ask.resoli.dev/broadcast"
	"github.com/resoli/api.ask.resoli.dev/poll"
	"github.com/resoli/api.ask.resoli.dev/storage"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testCtx = context.Background()

type testEnv struct {
	app         *fiber.App
	service     *poll.Service
	coordinator *broadcast.Coordinator
	uploadsDir  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	service := poll.NewService(storage.NewMemoryStorage())
	coordinator := broadcast.New(nil)
	uploadsDir := t.TempDir()

	return &testEnv{
		app:         newApp(service, coordinator, uploadsDir),
		service:     service,
		coordinator: coordinator,
		uploadsDir:  uploadsDir,
	}
}

func (e *testEnv) request(t *testing.T, method, url string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, url, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func (e *testEnv) createPoll(t *testing.T, code string) *storage.Poll {
	t.Helper()
	p, err := e.service.CreatePoll(testCtx, code, "secret", nil, nil)
	require.NoError(t, err)
	return p
}

func (e *testEnv) addQuestion(t *testing.T, pollID primitive.ObjectID, allowMultiple bool, options ...string) *storage.Question {
	t.Helper()
	q, err := e.service.AddQuestion(testCtx, pollID, nil, "What now?", false, allowMultiple, options)
	require.NoError(t, err)
	return q
}

// multipartFile builds a one-file multipart body with an explicit part
// content type, the way browsers submit image uploads.
func multipartFile(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf, w.FormDataContentType()
}

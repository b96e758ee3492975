package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorganca/sinkcache/api"
	"github.com/jmorganca/sinkcache/kvcache"
	"github.com/jmorganca/sinkcache/version"
)

// echoModel predicts token+1 and returns constant KV rows.
type echoModel struct {
	headDim int
}

func (m *echoModel) Forward(_ context.Context, token int32, inputs *kvcache.AttentionInputs) (logits []float32, keys, values [][]float32, err error) {
	logits = make([]float32, 100)
	logits[(int(token)+1)%100] = 1

	row := make([]float32, m.headDim)
	for i := range row {
		row[i] = float32(token)
	}

	for range inputs.Keys {
		keys = append(keys, row)
		values = append(values, row)
	}

	return logits, keys, values, nil
}

func testDefaults() api.Config {
	return api.Config{
		SinkSize:   2,
		WindowSize: 6,
		Encoding:   api.EncodingNone,
		NumLayers:  1,
		NumHeads:   2,
		HeadDim:    4,
		KVType:     "f32",
	}
}

func testServer() *Server {
	gin.SetMode(gin.TestMode)
	return New(&echoModel{headDim: 4}, testDefaults())
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.GenerateRoutes().ServeHTTP(w, req)

	return w
}

func TestVersionHandler(t *testing.T) {
	w := doRequest(t, testServer(), http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, version.Version, resp["version"])
}

func TestGenerateStream(t *testing.T) {
	w := doRequest(t, testServer(), http.MethodPost, "/api/generate", api.GenerateRequest{
		Prompt:    []int32{1, 2, 3},
		MaxTokens: 5,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	var responses []api.GenerateResponse
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		var resp api.GenerateResponse
		require.NoError(t, json.Unmarshal(sc.Bytes(), &resp))
		responses = append(responses, resp)
	}
	require.NoError(t, sc.Err())

	require.Len(t, responses, 5)
	for i, resp := range responses {
		assert.Equal(t, responses[0].ID, resp.ID)
		assert.Equal(t, i == len(responses)-1, resp.Done)
	}

	last := responses[len(responses)-1]
	assert.Equal(t, 5, last.EvalCount)
	assert.Positive(t, last.EvalDuration)

	// greedy over echoModel logits continues the prompt
	assert.Equal(t, int32(4), responses[0].Token)
	assert.Equal(t, int32(5), responses[1].Token)
}

func TestGenerateLongPromptBounded(t *testing.T) {
	// prompt far past capacity still streams fine
	prompt := make([]int32, 4*testDefaults().Capacity())
	for i := range prompt {
		prompt[i] = int32(i % 90)
	}

	w := doRequest(t, testServer(), http.MethodPost, "/api/generate", api.GenerateRequest{
		Prompt:    prompt,
		MaxTokens: 2,
	})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestGenerateOptions(t *testing.T) {
	w := doRequest(t, testServer(), http.MethodPost, "/api/generate", api.GenerateRequest{
		Prompt:    []int32{1},
		MaxTokens: 1,
		Options:   map[string]any{"sink_size": 0, "window_size": 4},
	})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestGenerateErrors(t *testing.T) {
	cases := []struct {
		name string
		req  api.GenerateRequest
	}{
		{"empty prompt", api.GenerateRequest{MaxTokens: 1}},
		{"unknown option", api.GenerateRequest{
			Prompt:  []int32{1},
			Options: map[string]any{"sink_sise": 1},
		}},
		{"zero window", api.GenerateRequest{
			Prompt:  []int32{1},
			Options: map[string]any{"window_size": 0},
		}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, testServer(), http.MethodPost, "/api/generate", tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGenerateMalformedBody(t *testing.T) {
	s := testServer()

	req, err := http.NewRequest(http.MethodPost, "/api/generate", bytes.NewBufferString("{"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.GenerateRoutes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

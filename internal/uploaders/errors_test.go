package uploaders

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"video-crosspost/internal/logging"
)

const quotaEnvelope = `{"error":{"code":403,"message":"The request cannot be completed because you have exceeded your quota.",
"errors":[{"reason":"quotaExceeded","domain":"youtube.quota","locationType":"parameter","location":"part","message":"quota"},
{"reason":"second","domain":"global","message":"other"}]}}`

func TestDiagnoseGoogleEnvelope(t *testing.T) {
	err := fmt.Errorf("insert: %w", &googleapi.Error{Code: 403, Message: "quota", Body: quotaEnvelope})

	d := Diagnose(err)
	assert.Equal(t, 403, d.StatusCode)
	require.NotNil(t, d.Envelope)
	assert.Equal(t, 403, d.Envelope.Code)
	require.Len(t, d.Envelope.Errors, 2)
	assert.Equal(t, ErrorItem{
		Reason:       "quotaExceeded",
		Domain:       "youtube.quota",
		LocationType: "parameter",
		Location:     "part",
		Message:      "quota",
	}, d.Envelope.Errors[0])
	assert.Empty(t, d.RawBody)
	assert.Equal(t, "quotaExceeded", d.Reason())
	assert.Equal(t, "quotaExceeded", FirstReason(err))
}

func TestDiagnoseGoogleErrorWithoutBody(t *testing.T) {
	err := &googleapi.Error{Code: 400, Message: "bad", Errors: []googleapi.ErrorItem{{Reason: "invalidTitle", Message: "title"}}}

	d := Diagnose(err)
	require.NotNil(t, d.Envelope)
	assert.Equal(t, "invalidTitle", d.Reason())
}

func TestDiagnoseGraphBody(t *testing.T) {
	err := &APIError{
		Op:         "instagram create container",
		StatusCode: http.StatusBadRequest,
		Body:       []byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190,"fbtrace_id":"AbC"}}`),
	}

	d := Diagnose(err)
	assert.Equal(t, 400, d.StatusCode)
	require.NotNil(t, d.Envelope)
	assert.Equal(t, 190, d.Envelope.Code)
	assert.Equal(t, "OAuthException", d.Envelope.Type)
	assert.Equal(t, "AbC", d.Envelope.FBTraceID)
	assert.Empty(t, d.Reason())
}

func TestDiagnoseUnstructuredBodies(t *testing.T) {
	cases := map[string]error{
		"plain text":   &APIError{Op: "x", StatusCode: 502, Body: []byte("Bad Gateway")},
		"string error": &oauth2.RetrieveError{Response: &http.Response{StatusCode: 400}, Body: []byte(`{"error":"invalid_grant"}`)},
		"code string":  &googleapi.Error{Code: 500, Body: `{"error":{"code":"oops"}}`},
		"array body":   &APIError{Op: "x", StatusCode: 500, Body: []byte(`[1,2,3]`)},
	}
	for name, err := range cases {
		t.Run(name, func(t *testing.T) {
			d := Diagnose(err)
			assert.Nil(t, d.Envelope)
			assert.NotEmpty(t, d.RawBody)
			assert.Empty(t, d.Reason())
		})
	}
}

func TestDiagnoseNeverMutatesOrPanics(t *testing.T) {
	log, err := logging.New(filepath.Join(t.TempDir(), "errors.log"), "error")
	require.NoError(t, err)
	defer log.Close()

	cases := []error{
		nil,
		errors.New(""),
		errors.New("plain"),
		&googleapi.Error{},
		&googleapi.Error{Body: "{"},
		&googleapi.Error{Body: `{"error":null}`},
		&googleapi.Error{Body: `{"error":{"errors":[null,{}]}}`},
		&APIError{},
		&APIError{Body: []byte{0xff, 0xfe}},
		&oauth2.RetrieveError{Response: &http.Response{StatusCode: 401}},
		fmt.Errorf("wrapped: %w", &APIError{StatusCode: 418, Body: []byte(`{"error":{"errors":"nope"}}`)}),
	}
	for _, e := range cases {
		before := fmt.Sprintf("%#v", e)
		assert.NotPanics(t, func() {
			d := Diagnose(e)
			d.Log(log, "test")
			_ = d.Reason()
			_ = FirstReason(e)
		})
		assert.Equal(t, before, fmt.Sprintf("%#v", e))
	}
}

func TestDiagnosisLogWritesOneRecordPerSubError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	log, err := logging.New(path, "error")
	require.NoError(t, err)

	Diagnose(&googleapi.Error{Code: 403, Body: quotaEnvelope}).Log(log, "YT.videos.insert")
	require.NoError(t, log.Close())

	lines, err := logging.TailLastNLines(path, 10)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	var head map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &head))
	assert.Equal(t, "YT.videos.insert ERROR", head["msg"])
	assert.EqualValues(t, 403, head["status"])

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &first))
	assert.Equal(t, "YT.videos.insert error.errors[0]", first["msg"])
	assert.Equal(t, "quotaExceeded", first["reason"])
	assert.Equal(t, "youtube.quota", first["domain"])
	assert.Equal(t, "parameter", first["locationType"])
	assert.Equal(t, "part", first["location"])
}

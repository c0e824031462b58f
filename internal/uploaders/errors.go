package uploaders

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"video-crosspost/internal/logging"
)

const maxLoggedBody = 2048

// APIError is a non-2xx response from a plain HTTP provider call.
type APIError struct {
	Op         string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, body)
}

// ErrorItem is one entry of error.errors in the structured envelope.
type ErrorItem struct {
	Reason       string `json:"reason"`
	Domain       string `json:"domain"`
	LocationType string `json:"locationType"`
	Location     string `json:"location"`
	Message      string `json:"message"`
}

// ErrorEnvelope is the error object of {"error":{code,message,errors:[...]}}.
// Type and FBTraceID are only set by the graph platform.
type ErrorEnvelope struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Errors    []ErrorItem `json:"errors"`
	Type      string      `json:"type"`
	FBTraceID string      `json:"fbtrace_id"`
}

// Diagnosis is what could be learned from a failed remote call.
// Envelope is nil when the body did not match the structured shape; RawBody then holds it.
type Diagnosis struct {
	Name       string
	Message    string
	StatusCode int
	Envelope   *ErrorEnvelope
	RawBody    string
}

// Diagnose inspects err without modifying it. It never panics on odd shapes.
func Diagnose(err error) Diagnosis {
	if err == nil {
		return Diagnosis{}
	}
	d := Diagnosis{Name: fmt.Sprintf("%T", err), Message: err.Error()}

	var body []byte
	var gerr *googleapi.Error
	var aerr *APIError
	var rerr *oauth2.RetrieveError
	switch {
	case errors.As(err, &gerr):
		d.StatusCode = gerr.Code
		body = []byte(gerr.Body)
		if len(body) == 0 && (gerr.Message != "" || len(gerr.Errors) > 0) {
			env := &ErrorEnvelope{Code: gerr.Code, Message: gerr.Message}
			for _, it := range gerr.Errors {
				env.Errors = append(env.Errors, ErrorItem{Reason: it.Reason, Message: it.Message})
			}
			d.Envelope = env
			return d
		}
	case errors.As(err, &aerr):
		d.StatusCode = aerr.StatusCode
		body = aerr.Body
	case errors.As(err, &rerr):
		if rerr.Response != nil {
			d.StatusCode = rerr.Response.StatusCode
		}
		body = rerr.Body
	}

	if len(body) == 0 {
		return d
	}
	if env, ok := decodeEnvelope(body); ok {
		d.Envelope = env
		return d
	}
	d.RawBody = string(body)
	if len(d.RawBody) > maxLoggedBody {
		d.RawBody = d.RawBody[:maxLoggedBody]
	}
	return d
}

func decodeEnvelope(body []byte) (*ErrorEnvelope, bool) {
	if !gjson.ValidBytes(body) || !gjson.GetBytes(body, "error").IsObject() {
		return nil, false
	}
	var wrapper struct {
		Error *ErrorEnvelope `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil || wrapper.Error == nil {
		return nil, false
	}
	return wrapper.Error, true
}

// Reason is the provider short code of the first structured sub-error, or "".
func (d Diagnosis) Reason() string {
	if d.Envelope == nil || len(d.Envelope.Errors) == 0 {
		return ""
	}
	return d.Envelope.Errors[0].Reason
}

// Log writes one error record for the failure plus one per structured sub-error.
func (d Diagnosis) Log(log *logging.Logger, prefix string) {
	if log == nil || d.Message == "" {
		return
	}
	kv := []any{"name", d.Name, "message", d.Message}
	if d.StatusCode != 0 {
		kv = append(kv, "status", d.StatusCode)
	}
	switch {
	case d.Envelope != nil:
		kv = append(kv, "error.code", d.Envelope.Code, "error.message", d.Envelope.Message)
		if d.Envelope.Type != "" {
			kv = append(kv, "error.type", d.Envelope.Type)
		}
		if d.Envelope.FBTraceID != "" {
			kv = append(kv, "error.fbtrace_id", d.Envelope.FBTraceID)
		}
	case d.RawBody != "":
		kv = append(kv, "response.body", d.RawBody)
	}
	log.Errorw(prefix+" ERROR", kv...)

	if d.Envelope == nil {
		return
	}
	for i, e := range d.Envelope.Errors {
		log.Errorw(fmt.Sprintf("%s error.errors[%d]", prefix, i),
			"reason", e.Reason,
			"domain", e.Domain,
			"locationType", e.LocationType,
			"location", e.Location,
			"message", e.Message,
		)
	}
}

// FirstReason returns the first structured sub-error reason carried by err, or "".
func FirstReason(err error) string {
	return Diagnose(err).Reason()
}

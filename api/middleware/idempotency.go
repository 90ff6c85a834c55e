package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oneman/oneman-backend/api/responses"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
	pkgredis "github.com/oneman/oneman-backend/pkg/redis"
	"github.com/oneman/oneman-backend/pkg/types"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

type routeMatcher func(string) bool

type idempotencyRule struct {
	method  string
	matcher routeMatcher
	ttl     time.Duration
}

// Material mutations are keyed so a double submit from the flow's
// Submitting state applies once.
var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, matcher: matchGroupSuffix("/materials"), ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, matcher: matchGroupSuffix("/materials/remove"), ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, matcher: matchGroupSuffix("/materials/transfer"), ttl: criticalIdempotencyTTL},
}

type idempotencyRecord struct {
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
	Pending     bool              `json:"pending,omitempty"`
}

// Idempotency replays the stored response when a keyed request is repeated
// with the same body, and rejects a key reused with a different body or one
// whose first request is still running.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if idempotencyKey == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			scope := buildScope(r)
			key := store.IdempotencyKey(scope, idempotencyKey)

			proceed, err := reserveKey(r.Context(), store, key, requestHash, ttl)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !proceed.run {
				writeStoredResponse(w, proceed.record)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := defaultStatus(rec.status)
			// retryable outcomes release the key so the same submit can run again
			if retryableResponse(status, rec.body.Bytes()) {
				if delErr := store.Del(context.WithoutCancel(r.Context()), key); delErr != nil {
					logError(r.Context(), logg, "release idempotency key", delErr)
				}
				return
			}

			record := idempotencyRecord{
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				RequestHash: requestHash,
			}
			if ct := rec.Header().Get("Content-Type"); ct != "" {
				record.Headers = map[string]string{"Content-Type": ct}
			}

			payload, marshalErr := json.Marshal(record)
			if marshalErr != nil {
				logError(r.Context(), logg, "marshal idempotency record", marshalErr)
				return
			}

			if setErr := store.Set(context.WithoutCancel(r.Context()), key, string(payload), ttl); setErr != nil {
				logError(r.Context(), logg, "persist idempotency record", setErr)
			}
		})
	}
}

type reservation struct {
	run    bool
	record *idempotencyRecord
}

// reserveKey claims key with a pending record before the handler runs. A key
// held by another request is either replayed, still in flight, or reused with
// a different body.
func reserveKey(ctx context.Context, store pkgredis.IdempotencyStore, key, requestHash string, ttl time.Duration) (reservation, error) {
	pending, err := json.Marshal(idempotencyRecord{Pending: true, RequestHash: requestHash})
	if err != nil {
		return reservation{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency reservation")
	}

	// a key released between SetNX and Get is claimed on the second pass
	for attempt := 0; attempt < 2; attempt++ {
		claimed, setErr := store.SetNX(ctx, key, string(pending), ttl)
		if setErr != nil {
			return reservation{}, pkgerrors.Wrap(pkgerrors.CodeDependency, setErr, "reserve idempotency key")
		}
		if claimed {
			return reservation{run: true}, nil
		}

		stored, getErr := store.Get(ctx, key)
		if errors.Is(getErr, redis.Nil) {
			continue
		}
		if getErr != nil {
			return reservation{}, pkgerrors.Wrap(pkgerrors.CodeDependency, getErr, "check idempotency")
		}
		record, decodeErr := decodeRecord(stored)
		if decodeErr != nil {
			return reservation{}, pkgerrors.Wrap(pkgerrors.CodeDependency, decodeErr, "decode idempotency record")
		}
		if record.RequestHash != requestHash {
			return reservation{}, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
		}
		if record.Pending {
			return reservation{}, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still in progress").WithReason("InProgress")
		}
		return reservation{record: record}, nil
	}
	return reservation{}, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key is contended, retry the request").WithReason("InProgress")
}

// retryableResponse reports whether the client may repeat the request under
// the same key: server errors, rate limits and error codes marked retryable.
func retryableResponse(status int, body []byte) bool {
	if status < http.StatusBadRequest {
		return false
	}
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return true
	}
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code == "" {
		return false
	}
	return pkgerrors.MetadataFor(pkgerrors.Code(envelope.Error.Code)).Retryable
}

func buildScope(r *http.Request) string {
	parts := []string{
		UserIDFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}
	return strings.Join(parts, "|")
}

func decodeRecord(payload string) (*idempotencyRecord, error) {
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func writeStoredResponse(w http.ResponseWriter, record *idempotencyRecord) {
	if record == nil {
		return
	}
	if ct, ok := record.Headers["Content-Type"]; ok && ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

func routeTTL(method, path string) (time.Duration, bool) {
	if path == "" {
		return 0, false
	}
	for _, rule := range idempotencyRules {
		if rule.method != method {
			continue
		}
		if rule.matcher(path) {
			return rule.ttl, true
		}
	}
	return 0, false
}

// matchGroupSuffix matches /api/v1/{kind}/{groupId}<suffix>.
func matchGroupSuffix(suffix string) routeMatcher {
	return func(path string) bool {
		rest, ok := strings.CutPrefix(path, "/api/v1/")
		if !ok {
			return false
		}
		parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
		want := strings.Split(strings.TrimPrefix(suffix, "/"), "/")
		if len(parts) != 2+len(want) {
			return false
		}
		if parts[0] != "sites" && parts[0] != "stores" {
			return false
		}
		for i, seg := range want {
			if parts[2+i] != seg {
				return false
			}
		}
		return parts[1] != ""
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}

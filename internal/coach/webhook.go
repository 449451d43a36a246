package coach

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/coach-dss/coach/internal/httputil"
)

// HubSignatureHeader carries the GitHub push signature.
const HubSignatureHeader = "X-Hub-Signature"

const maxWebhookBody = 1 << 20

// VerifyHubSignature checks a "sha1=<hex>" signature of body.
func VerifyHubSignature(secret, signature string, body []byte) bool {
	hexSum, ok := strings.CutPrefix(signature, "sha1=")
	if !ok || secret == "" {
		return false
	}
	got, err := hex.DecodeString(hexSum)
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func (m *Microservice) githubUpdateHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := httputil.ReadAllStrict(r.Body, maxWebhookBody)
		if err != nil {
			httputil.BadRequest(w, "unreadable body")
			return
		}

		if !VerifyHubSignature(secret, r.Header.Get(HubSignatureHeader), body) {
			m.logger.LogSecurityEvent(ctx, "webhook_signature_rejected", map[string]interface{}{
				"remote_addr": r.RemoteAddr,
				"event":       r.Header.Get("X-GitHub-Event"),
			})
			httputil.Forbidden(w, "invalid signature")
			return
		}

		if m.onUpdate != nil {
			if err := m.onUpdate(ctx); err != nil {
				m.logger.WithContext(ctx).WithError(err).Error("update hook failed")
				httputil.InternalError(w, "update failed")
				return
			}
		}
		httputil.WriteText(w, http.StatusOK, "ok")
	}
}

// Package whatsapp adapts Twilio's WhatsApp webhook to the chat dispatcher.
package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"matador/internal/chat"
	"matador/internal/log"
)

const maxFormBytes = 64 << 10

// MessageHandler is implemented by *chat.Dispatcher.
type MessageHandler interface {
	HandleMessage(ctx context.Context, in chat.Inbound) string
}

type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// Webhook answers Twilio inbound messages with TwiML. With a signature
// option set, requests must carry a valid X-Twilio-Signature.
type Webhook struct {
	handler   MessageHandler
	authToken string
	publicURL string
}

type Option func(*Webhook)

// WithSignature enables Twilio request validation. publicURL is the exact
// URL configured in the Twilio console.
func WithSignature(authToken, publicURL string) Option {
	return func(w *Webhook) {
		w.authToken = authToken
		w.publicURL = publicURL
	}
}

func NewWebhook(h MessageHandler, opts ...Option) *Webhook {
	w := &Webhook{handler: h}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (wh *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if wh.authToken != "" && !validSignature(wh.authToken, wh.publicURL, r.PostForm, r.Header.Get("X-Twilio-Signature")) {
		log.FromContext(r.Context()).WithComponent(log.ComponentWhatsApp).
			WarnContext(r.Context(), "Rejected webhook with invalid Twilio signature", log.FieldClientIP, r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	in := chat.Inbound{
		Phone: r.PostForm.Get("From"),
		Name:  r.PostForm.Get("ProfileName"),
		Text:  r.PostForm.Get("Body"),
	}
	reply := wh.handler.HandleMessage(r.Context(), in)
	writeTwiML(w, reply)
}

func writeTwiML(w http.ResponseWriter, msg string) {
	body, err := xml.Marshal(twiml{Message: msg})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}

// validSignature implements Twilio's scheme: base64(HMAC-SHA1(token, url +
// sorted key/value pairs)).
func validSignature(authToken, publicURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	expected := Sign(authToken, publicURL, form)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the X-Twilio-Signature for a form posted to publicURL.
func Sign(authToken, publicURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(publicURL)
	for _, k := range keys {
		for _, v := range form[k] {
			sb.WriteString(k)
			sb.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

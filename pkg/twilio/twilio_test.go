package twilio

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(Config{
		AccountSID:     "AC123",
		AuthToken:      "secret",
		WhatsAppNumber: "whatsapp:+14155238886",
		APIURL:         server.URL,
	}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	var gotPath, gotUser, gotPass string
	var gotForm url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"sid":"SM1","status":"queued"}`)
	})

	if err := c.SendMessage(context.Background(), "whatsapp:+15551234567", "hello"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "secret" {
		t.Fatalf("unexpected basic auth %q:%q", gotUser, gotPass)
	}
	if gotForm.Get("To") != "whatsapp:+15551234567" || gotForm.Get("From") != "whatsapp:+14155238886" || gotForm.Get("Body") != "hello" {
		t.Fatalf("unexpected form: %#v", gotForm)
	}
}

func TestSendMessageErrorStatus(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":21211,"message":"Invalid 'To' Phone Number"}`)
	})

	err := c.SendMessage(context.Background(), "whatsapp:+1", "hello")
	if err == nil || !strings.Contains(err.Error(), "Invalid 'To' Phone Number") {
		t.Fatalf("SendMessage() error = %v", err)
	}
}

func TestFetchMediaUsesBasicAuth(t *testing.T) {
	t.Parallel()

	var gotUser string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotUser, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "audio/ogg")
		fmt.Fprint(w, "OggS")
	})

	data, contentType, err := c.FetchMedia(context.Background(), c.apiURL+"/media/ME1")
	if err != nil {
		t.Fatalf("FetchMedia() error = %v", err)
	}
	if string(data) != "OggS" || contentType != "audio/ogg" || gotUser != "AC123" {
		t.Fatalf("unexpected media fetch data=%q type=%q user=%q", data, contentType, gotUser)
	}
}

func TestParseInbound(t *testing.T) {
	t.Parallel()

	form := url.Values{}
	form.Set("WaId", "15551234567")
	form.Set("From", "whatsapp:+15551234567")
	form.Set("ProfileName", "Ann")
	form.Set("Body", "hi there")
	form.Set("NumMedia", "2")
	form.Set("MediaUrl0", "https://api.twilio.com/media/0")
	form.Set("MediaContentType0", "image/jpeg")
	form.Set("MediaUrl1", "https://api.twilio.com/media/1")
	form.Set("MediaContentType1", "audio/ogg")

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	in, err := ParseInbound(req)
	if err != nil {
		t.Fatalf("ParseInbound() error = %v", err)
	}
	if in.UserID != "15551234567" || in.Phone != "+15551234567" || in.ProfileName != "Ann" || in.Body != "hi there" {
		t.Fatalf("unexpected inbound: %#v", in)
	}
	if len(in.Media) != 2 || in.Media[0].IsAudio() || !in.Media[1].IsAudio() {
		t.Fatalf("unexpected media: %#v", in.Media)
	}
}

func TestParseInboundRequiresSender(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("Body=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := ParseInbound(req); err != ErrMissingSender {
		t.Fatalf("ParseInbound() error = %v, want ErrMissingSender", err)
	}
}

func TestParseInboundRejectsBadNumMedia(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"-1", "abc", "11", "20000000"} {
		form := url.Values{}
		form.Set("WaId", "15551234567")
		form.Set("Body", "hi")
		form.Set("NumMedia", raw)

		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		if _, err := ParseInbound(req); err == nil {
			t.Fatalf("ParseInbound(NumMedia=%s) expected error", raw)
		}
	}
}

func TestParseInboundAcceptsMaxMedia(t *testing.T) {
	t.Parallel()

	form := url.Values{}
	form.Set("WaId", "15551234567")
	form.Set("NumMedia", fmt.Sprint(MaxMedia))
	for i := 0; i < MaxMedia; i++ {
		form.Set(fmt.Sprintf("MediaUrl%d", i), fmt.Sprintf("https://api.twilio.com/media/%d", i))
		form.Set(fmt.Sprintf("MediaContentType%d", i), "image/png")
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	in, err := ParseInbound(req)
	if err != nil {
		t.Fatalf("ParseInbound() error = %v", err)
	}
	if len(in.Media) != MaxMedia {
		t.Fatalf("media = %d, want %d", len(in.Media), MaxMedia)
	}
}

func TestMessagingResponse(t *testing.T) {
	t.Parallel()

	out, err := MessagingResponse("Order *ORD-1* <ok> & done")
	if err != nil {
		t.Fatalf("MessagingResponse() error = %v", err)
	}
	want := `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
		`<Response><Message>Order *ORD-1* &lt;ok&gt; &amp; done</Message></Response>`
	if string(out) != want {
		t.Fatalf("MessagingResponse() = %q, want %q", out, want)
	}
}

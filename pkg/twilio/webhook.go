package twilio

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
)

const (
	whatsappScheme = "whatsapp:"

	// MaxMedia is the most attachments Twilio delivers with one WhatsApp message.
	MaxMedia = 10
)

var ErrMissingSender = errors.New("inbound message has no sender id")

// ParseInbound reads the form-encoded WhatsApp webhook payload.
func ParseInbound(r *http.Request) (contractx.InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return contractx.InboundMessage{}, fmt.Errorf("parse webhook form: %w", err)
	}

	userID := strings.TrimSpace(r.PostForm.Get("WaId"))
	if userID == "" {
		return contractx.InboundMessage{}, ErrMissingSender
	}

	from := strings.TrimSpace(r.PostForm.Get("From"))
	in := contractx.InboundMessage{
		UserID:      userID,
		From:        from,
		Phone:       strings.TrimPrefix(from, whatsappScheme),
		ProfileName: strings.TrimSpace(r.PostForm.Get("ProfileName")),
		Body:        r.PostForm.Get("Body"),
	}

	numMedia := 0
	if raw := strings.TrimSpace(r.PostForm.Get("NumMedia")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > MaxMedia {
			return contractx.InboundMessage{}, fmt.Errorf("invalid NumMedia=%q", raw)
		}
		numMedia = n
	}

	for i := 0; i < numMedia; i++ {
		mediaURL := strings.TrimSpace(r.PostForm.Get(fmt.Sprintf("MediaUrl%d", i)))
		if mediaURL == "" {
			continue
		}
		in.Media = append(in.Media, contractx.Media{
			URL:         mediaURL,
			ContentType: strings.TrimSpace(r.PostForm.Get(fmt.Sprintf("MediaContentType%d", i))),
		})
	}

	return in, nil
}

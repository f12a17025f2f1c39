package twilio

import "encoding/xml"

const TwiMLContentType = "application/xml"

type messagingResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

// MessagingResponse renders a TwiML document replying with each message in order.
func MessagingResponse(messages ...string) ([]byte, error) {
	body, err := xml.Marshal(messagingResponse{Messages: messages})
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

package notification

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const whatsAppBase = "https://wa.me/"

// LinkBuilder builds click-to-chat deep links. It never talks to the network.
type LinkBuilder struct {
	// CountryCode is the calling code (with or without "+") whose region
	// numbering plan applies to numbers written without an international
	// prefix.
	CountryCode string
}

// WhatsApp returns https://wa.me/<digits>?text=<message>.
func (b LinkBuilder) WhatsApp(phone, message string) (string, error) {
	digits, err := b.normalize(phone)
	if err != nil {
		return "", err
	}
	link := whatsAppBase + digits
	if message != "" {
		link += "?text=" + strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
	}
	return link, nil
}

// region maps CountryCode to the region whose dialing rules parse local
// numbers. An empty or unknown code yields "", which only accepts numbers
// written with "+".
func (b LinkBuilder) region() string {
	cc, err := strconv.Atoi(strings.TrimLeft(strings.TrimSpace(b.CountryCode), "+"))
	if err != nil {
		return ""
	}
	r := phonenumbers.GetRegionCodeForCountryCode(cc)
	if r == phonenumbers.UNKNOWN_REGION {
		return ""
	}
	return r
}

// normalize returns the E.164 digits of phone, without the leading "+".
func (b LinkBuilder) normalize(phone string) (string, error) {
	num, err := phonenumbers.Parse(phone, b.region())
	if err != nil {
		return "", fmt.Errorf("phone number %q: %w", phone, err)
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", fmt.Errorf("phone number %q is not a dialable number", phone)
	}
	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+"), nil
}

package clerk

import "encoding/json"

type ClerkWebhookEvent struct {
	Data   json.RawMessage `json:"data"`
	Object string          `json:"object"`
	Type   string          `json:"type"`
}

type ClerkEmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
	Verification struct {
		Status string `json:"status"`
	} `json:"verification"`
}

type ClerkUserData struct {
	ID                    string              `json:"id"`
	FirstName             string              `json:"first_name"`
	LastName              string              `json:"last_name"`
	Username              string              `json:"username"`
	ImageURL              string              `json:"image_url"`
	ProfileImageURL       string              `json:"profile_image_url"`
	PrimaryEmailAddressID string              `json:"primary_email_address_id"`
	EmailAddresses        []ClerkEmailAddress `json:"email_addresses"`
	UnsafeMetadata        map[string]any      `json:"unsafe_metadata"`
}

// PrimaryEmail returns the primary address, or the first one when no primary is flagged.
func (d *ClerkUserData) PrimaryEmail() (string, bool) {
	for _, e := range d.EmailAddresses {
		if e.ID == d.PrimaryEmailAddressID {
			return e.EmailAddress, e.Verification.Status == "verified"
		}
	}
	if len(d.EmailAddresses) > 0 {
		e := d.EmailAddresses[0]
		return e.EmailAddress, e.Verification.Status == "verified"
	}
	return "", false
}

// ReferralCode is the invite code the client stored in unsafe_metadata at sign-up.
func (d *ClerkUserData) ReferralCode() string {
	code, _ := d.UnsafeMetadata["referral_code"].(string)
	return code
}

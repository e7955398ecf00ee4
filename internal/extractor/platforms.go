package extractor

import (
	"strings"

	"github.com/inboxpilot/otp-relay/internal/models"
)

// fingerprint ties a platform tag to the substrings that identify its
// verification emails. Sender patterns are checked first, then subject
// patterns; matching is case-insensitive and first match wins.
type fingerprint struct {
	platform string
	senders  []string
	subjects []string
}

// platformFingerprints is ordered: earlier entries take precedence when
// an email matches more than one service.
var platformFingerprints = []fingerprint{
	{
		platform: "vinsolutions",
		senders:  []string{"vinsolutions.com", "vinmanager"},
		subjects: []string{"vinsolutions"},
	},
	{
		platform: "salesforce",
		senders:  []string{"salesforce.com", "force.com"},
		subjects: []string{"salesforce"},
	},
	{
		platform: "dealersocket",
		senders:  []string{"dealersocket.com"},
		subjects: []string{"dealersocket"},
	},
	{
		platform: "eleads",
		senders:  []string{"eleadcrm.com", "eleads"},
		subjects: []string{"elead"},
	},
	{
		platform: "cdk",
		senders:  []string{"cdkglobal.com", "cdk.com"},
		subjects: []string{"cdk global"},
	},
	{
		platform: "hubspot",
		senders:  []string{"hubspot.com"},
		subjects: []string{"hubspot"},
	},
}

// IdentifyPlatform maps an email's sender and subject to a platform tag.
// The tag is authoritative for the whole extraction regardless of which
// stage eventually produces the code. Unrecognized emails tag as
// models.PlatformUnknown.
func IdentifyPlatform(sender, subject string) string {
	sender = strings.ToLower(sender)
	subject = strings.ToLower(subject)

	for _, fp := range platformFingerprints {
		for _, s := range fp.senders {
			if strings.Contains(sender, s) {
				return fp.platform
			}
		}
		for _, s := range fp.subjects {
			if strings.Contains(subject, s) {
				return fp.platform
			}
		}
	}
	return models.PlatformUnknown
}

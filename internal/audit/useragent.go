package audit

import (
	"github.com/mssola/useragent"

	"membership-crm/core/internal/audit/domain"
)

// enrichUserAgent fills the OS/browser/device fields from the raw User-Agent.
// Enrichment only: an unparseable UA leaves the fields empty and never blocks
// the write.
func enrichUserAgent(rc *domain.RequestContext) {
	if rc.UserAgent == "" {
		return
	}
	ua := useragent.New(rc.UserAgent)
	rc.OS = ua.OS()
	name, _ := ua.Browser()
	rc.Browser = name
	switch {
	case ua.Bot():
		rc.Device = "bot"
	case ua.Mobile():
		rc.Device = "mobile"
	default:
		rc.Device = "desktop"
	}
}

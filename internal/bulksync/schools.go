package bulksync

import (
	"context"
	"strings"

	"surveysync.org/internal/auth"
)

// SchoolsForPartner lists the schools a device may target. An empty
// partnerID means the user's own partner; other partners are visible to
// administrative roles only.
func (p *Processor) SchoolsForPartner(ctx context.Context, user auth.Identity, partnerID string) ([]School, error) {
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		partnerID = user.PartnerID
	}
	if partnerID == "" {
		return nil, ErrPartnerRequired
	}
	if !user.IsAdministrative() && user.PartnerID != partnerID {
		return nil, ErrPartnerForbidden
	}
	return p.store.Schools(ctx).ListByPartner(ctx, partnerID)
}

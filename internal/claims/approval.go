package claims

import "claimchat/backend/internal/models"

// Approve is the only transition: pending -> approved. Approving an approved
// room reports changed=false.
func Approve(current models.ApprovalStatus) (next models.ApprovalStatus, changed bool) {
	if current == models.ApprovalApproved {
		return current, false
	}
	return models.ApprovalApproved, true
}

// Merge applies an incoming copy of a room over the local one without ever
// moving approval backwards.
func Merge(local, incoming models.ClaimRoom) models.ClaimRoom {
	if local.IsApproved() && !incoming.IsApproved() {
		incoming.ApprovalStatus = models.ApprovalApproved
	}
	return incoming
}

// CanApprove reports whether viewerID may approve rooms of the item.
func CanApprove(item models.ItemContactInfo, viewerID string) bool {
	return viewerID != "" && viewerID == item.ReporterID
}

// VisibleContactInfo returns the reporter's contact info when viewerID is the
// room's claimer and the room is approved. It must be evaluated on every read.
func VisibleContactInfo(room *models.ClaimRoom, item models.ItemContactInfo, viewerID string) (string, bool) {
	if room == nil || viewerID == "" {
		return "", false
	}
	if !room.IsApproved() || viewerID != room.ClaimerID {
		return "", false
	}
	return item.ContactInfo, true
}

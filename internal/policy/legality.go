package policy

import (
	"github.com/kerbside-labs/kerbd/internal/rules"
)

// IsLegalNow decides whether the requester may park at all, ignoring
// price. Non-privileged segment types are legal to everyone. Privileged
// segments enforce through their Forbidden windows: legal to outsiders
// only while no Forbidden window is active; during one only Disability
// permits and Zone-Resident permits matching the segment's zone qualify.
func IsLegalNow(parkingType rules.ParkingType, segmentZone string, permit PermitContext, forbiddenActiveNow bool) bool {
	if parkingType != rules.TypePrivileged {
		return true
	}
	if !forbiddenActiveNow {
		return true
	}
	switch permit.Kind {
	case PermitDisability:
		return true
	case PermitZoneResident:
		return permit.ZoneCode != "" && permit.ZoneCode == segmentZone
	default:
		return false
	}
}

package identifier

import "strings"

// WhatsApp JID suffixes. User JIDs are phone-derived and addressable;
// lid JIDs are opaque privacy identifiers that may denote the same
// contact as a user JID.
const (
	SuffixUser      = "@s.whatsapp.net"
	SuffixGroup     = "@g.us"
	SuffixBroadcast = "@broadcast"
	SuffixLid       = "@lid"
)

// WhatsApp classifies WhatsApp JIDs. The lid form is the alternate;
// the phone-derived user JID is canonical. Group and broadcast JIDs
// have no alternate form and classify as canonical.
type WhatsApp struct{}

func (WhatsApp) Channel() string        { return "whatsapp" }
func (WhatsApp) HasAlternateForm() bool { return true }

func (WhatsApp) IsAlternate(id string) bool { return IsLidJID(id) }

func (WhatsApp) IsCanonical(id string) bool { return !IsLidJID(id) }

// IsUserJID reports whether jid is a phone-derived user JID.
func IsUserJID(jid string) bool { return strings.HasSuffix(jid, SuffixUser) }

// IsGroupJID reports whether jid addresses a group.
func IsGroupJID(jid string) bool { return strings.HasSuffix(jid, SuffixGroup) }

// IsLidJID reports whether jid is an opaque lid identifier.
func IsLidJID(jid string) bool { return strings.HasSuffix(jid, SuffixLid) }

// ToUserJID converts a phone number or partial identifier to a full
// user JID. Identifiers that already carry a suffix pass through
// unchanged; otherwise non-digits are stripped.
func ToUserJID(identifier string) string {
	if strings.Contains(identifier, "@") {
		return identifier
	}
	var b strings.Builder
	for _, r := range identifier {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String() + SuffixUser
}

// ToGroupJID converts a group id to a full group JID.
func ToGroupJID(groupID string) string {
	if strings.HasSuffix(groupID, SuffixGroup) {
		return groupID
	}
	return groupID + SuffixGroup
}

// ExtractPhone returns the phone number from a user JID, or "" when
// jid is not a user JID.
func ExtractPhone(jid string) string {
	if !IsUserJID(jid) {
		return ""
	}
	return strings.TrimSuffix(jid, SuffixUser)
}

// ResolveToUserJID resolves jid to a phone-derived JID when possible.
// Preference order: jid itself when already canonical, then alt when
// it is a user JID, then a lookup function (typically backed by the
// persisted mapping). Unresolvable lid JIDs pass through unchanged.
func ResolveToUserJID(jid, alt string, lookup func(string) (string, bool)) string {
	if jid == "" {
		return ""
	}
	if !IsLidJID(jid) {
		return jid
	}
	if alt != "" && IsUserJID(alt) {
		return alt
	}
	if lookup != nil {
		if resolved, ok := lookup(jid); ok && resolved != "" {
			return resolved
		}
	}
	return jid
}

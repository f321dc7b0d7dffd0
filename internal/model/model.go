// Package model defines the persisted entities and the identity resolved from
// caller claims.
package model

// Identity is the tenant scope resolved from a pre-verified claims map.
type Identity struct {
	TenantID string   `json:"tenant_id"`
	UserID   string   `json:"user_id"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// HasRole reports whether the identity carries any of the given roles.
func (id Identity) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range id.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Setting is the current record of a versioned setting. History snapshots
// share the shape, with SettingID rewritten to "{id}#v{version}".
type Setting struct {
	TenantID  string `json:"tenant_id"`
	SettingID string `json:"setting_id"`
	Name      string `json:"name"`
	Value     string `json:"value"`
	IsPublic  bool   `json:"is_public"`
	Version   int64  `json:"version"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Bookmark is a tenant-scoped bookmark record.
type Bookmark struct {
	TenantID   string   `json:"tenant_id"`
	BookmarkID string   `json:"bookmark_id"`
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Tags       []string `json:"tags"`
	CreatedAt  int64    `json:"created_at"`
	UpdatedAt  int64    `json:"updated_at"`
}

// Group is a tenant-scoped group record.
type Group struct {
	TenantID    string `json:"tenant_id"`
	GroupID     string `json:"group_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Membership links a user to a group. MemberKey is the composite sort key
// "{group_id}#{user_id}".
type Membership struct {
	TenantID  string `json:"tenant_id"`
	MemberKey string `json:"group_id#user_id"`
	GroupID   string `json:"group_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	JoinedAt  int64  `json:"joined_at"`
}

// Device session statuses. The only transition is pending -> confirmed.
const (
	SessionStatusPending   = "pending"
	SessionStatusConfirmed = "confirmed"
)

// DeviceSession is a short-lived pairing session. TTL is the absolute expiry
// as unix seconds; the store hides expired sessions from all reads.
type DeviceSession struct {
	TenantID      string `json:"tenant_id"`
	SessionID     string `json:"session_id"`
	DeviceCode    string `json:"device_code"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"created_at"`
	TTL           int64  `json:"ttl"`
	EmojiFeedback string `json:"emoji_feedback,omitempty"`
	FeedbackAt    int64  `json:"feedback_at,omitempty"`
}

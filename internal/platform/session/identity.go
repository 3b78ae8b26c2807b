package session

import "strconv"

// Storage keys for the identity fields. The values are kept as plain strings,
// isAdmin as the literal "true" or "false".
const (
	KeyToken    = "token"
	KeyUserID   = "userId"
	KeyUserName = "userName"
	KeyDeptCode = "deptCode"
	KeyIsAdmin  = "isAdmin"
)

// Keys lists every key owned by an identity. Clear removes exactly these.
var Keys = []string{KeyToken, KeyUserID, KeyUserName, KeyDeptCode, KeyIsAdmin}

// Identity is the authenticated record of the current user. IsAdmin is only
// ever true for identities produced by the admin login path.
type Identity struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	Token    string `json:"token"`
	DeptCode string `json:"deptCode,omitempty"`
	IsAdmin  bool   `json:"isAdmin"`
}

// DisplayName returns the user name, falling back to the user id.
func (i Identity) DisplayName() string {
	if i.UserName != "" {
		return i.UserName
	}
	return i.UserID
}

// fields returns the present fields of the identity keyed by storage key.
// Optional fields that are empty are left out so they are never written.
func (i Identity) fields() map[string]string {
	f := map[string]string{
		KeyUserID:  i.UserID,
		KeyIsAdmin: strconv.FormatBool(i.IsAdmin),
	}
	if i.Token != "" {
		f[KeyToken] = i.Token
	}
	if i.UserName != "" {
		f[KeyUserName] = i.UserName
	}
	if i.DeptCode != "" {
		f[KeyDeptCode] = i.DeptCode
	}
	return f
}

// identityFromFields rebuilds an identity. It returns nil when the primary key
// (userId) is absent.
func identityFromFields(f map[string]string) *Identity {
	userID := f[KeyUserID]
	if userID == "" {
		return nil
	}
	return &Identity{
		UserID:   userID,
		UserName: f[KeyUserName],
		Token:    f[KeyToken],
		DeptCode: f[KeyDeptCode],
		IsAdmin:  f[KeyIsAdmin] == "true",
	}
}

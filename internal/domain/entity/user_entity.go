package entity

// User is the authenticated identity owned by the session.
// It is immutable from the sync layer's point of view; profile edits go
// through the backend and arrive as a fresh probe.
type User struct {
	ID        int64  `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Verified  bool   `json:"is_verified"`
}

// Clone returns a copy safe to hand out to readers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Same reports whether both users carry the same identity.
func (u *User) Same(o *User) bool {
	if u == nil || o == nil {
		return u == nil && o == nil
	}
	return u.ID == o.ID
}

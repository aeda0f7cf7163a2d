package model

// UserState is the durable presence flag. It is the only cross-node signal
// the routing core consults when deciding between relay and offline queueing.
type UserState string

const (
	StateOnline  UserState = "online"
	StateOffline UserState = "offline"
)

// User is the persisted account record. Password holds the bcrypt hash,
// never the plaintext.
type User struct {
	ID       int64
	Name     string
	Password string
	State    UserState
}

type GroupRole string

const (
	RoleCreator GroupRole = "creator"
	RoleNormal  GroupRole = "normal"
)

type Group struct {
	ID    int64
	Name  string
	Desc  string
	Users []GroupMember
}

// GroupMember is a user as seen through a group roster.
type GroupMember struct {
	User
	Role GroupRole
}

package model

import "encoding/json"

// Message type identifiers carried in the "msgid" field of every inbound
// and outbound frame. Ack codes pair with their request code.
const (
	MsgLogin       = 1
	MsgLoginAck    = 2
	MsgRegister    = 3
	MsgRegisterAck = 4
	MsgChat        = 5
	MsgAddFriend   = 6
	MsgCreateGroup = 7
	MsgAddGroup    = 8
	MsgGroupChat   = 9
	MsgLogout      = 10
	MsgCreateAck   = 11
	MsgAddGroupAck = 12
)

// Errno values carried in acknowledgements.
const (
	ErrnoOK            = 0
	ErrnoFailure       = 1 // bad credentials, rejected insert, unknown target
	ErrnoAlreadyOnline = 2
)

// Envelope is the minimal view of an inbound frame: just enough to route it.
// The raw frame is kept alongside so chat payloads can be echoed verbatim.
type Envelope struct {
	MsgID int `json:"msgid"`
}

type LoginReq struct {
	ID       int64  `json:"id"`
	Password string `json:"password"`
}

type LogoutReq struct {
	ID int64 `json:"id"`
}

type RegisterReq struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// ChatReq only names the recipient; the rest of the frame is opaque to the
// router and is delivered byte-for-byte as received.
type ChatReq struct {
	To int64 `json:"to"`
}

type AddFriendReq struct {
	ID       int64 `json:"id"`
	FriendID int64 `json:"friendid"`
}

type CreateGroupReq struct {
	ID        int64  `json:"id"`
	GroupName string `json:"groupname"`
	GroupDesc string `json:"groupdesc"`
}

type AddGroupReq struct {
	ID      int64 `json:"id"`
	GroupID int64 `json:"groupid"`
}

type GroupChatReq struct {
	ID      int64 `json:"id"`
	GroupID int64 `json:"groupid"`
}

// Ack is the uniform acknowledgement shape.
type Ack struct {
	MsgID  int    `json:"msgid"`
	Errno  int    `json:"errno"`
	Errmsg string `json:"errmsg,omitempty"`
	ID     int64  `json:"id,omitempty"`
}

type FriendSummary struct {
	ID    int64     `json:"id"`
	Name  string    `json:"name"`
	State UserState `json:"state"`
}

type GroupMemberSummary struct {
	ID    int64     `json:"id"`
	Name  string    `json:"name"`
	State UserState `json:"state"`
	Role  GroupRole `json:"role"`
}

type GroupSummary struct {
	ID        int64                `json:"id"`
	GroupName string               `json:"groupname"`
	GroupDesc string               `json:"groupdesc"`
	Users     []GroupMemberSummary `json:"users"`
}

// LoginAck is the login success response. OfflineMsg holds the drained queue
// in arrival order, each element an already-serialized frame.
type LoginAck struct {
	MsgID      int               `json:"msgid"`
	Errno      int               `json:"errno"`
	ID         int64             `json:"id"`
	Name       string            `json:"name"`
	OfflineMsg []json.RawMessage `json:"offlinemsg,omitempty"`
	Friends    []FriendSummary   `json:"friends,omitempty"`
	Groups     []GroupSummary    `json:"groups,omitempty"`
}

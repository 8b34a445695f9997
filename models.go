package client

import (
	"bytes"
	"time"
)

// NoContent is the payload type of operations that return no body.
type NoContent struct{}

// ItemList is the wire shape of every list endpoint.
type ItemList[T any] struct {
	Items []T `json:"items"`
	Extension
}

// Person is the subset of a person returned by people/me.
type Person struct {
	ID          string    `json:"id,omitempty"`
	Emails      []string  `json:"emails,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	NickName    string    `json:"nickName,omitempty"`
	OrgID       string    `json:"orgId,omitempty"`
	Type        string    `json:"type,omitempty"`
	Created     time.Time `json:"created,omitzero"`
	Extension
}

// Space is a conversation space.
type Space struct {
	ID           string    `json:"id,omitempty"`
	Title        string    `json:"title,omitempty"`
	Type         string    `json:"type,omitempty"`
	IsLocked     bool      `json:"isLocked,omitempty"`
	TeamID       string    `json:"teamId,omitempty"`
	CreatorID    string    `json:"creatorId,omitempty"`
	LastActivity time.Time `json:"lastActivity,omitzero"`
	Created      time.Time `json:"created,omitzero"`
	Extension
}

// Message is a message posted to a space or directly to a person.
type Message struct {
	ID              string    `json:"id,omitempty"`
	SpaceID         string    `json:"roomId,omitempty"`
	SpaceType       string    `json:"roomType,omitempty"`
	ToPersonID      string    `json:"toPersonId,omitempty"`
	ToPersonEmail   string    `json:"toPersonEmail,omitempty"`
	Text            string    `json:"text,omitempty"`
	Markdown        string    `json:"markdown,omitempty"`
	HTML            string    `json:"html,omitempty"`
	Files           []string  `json:"files,omitempty"`
	PersonID        string    `json:"personId,omitempty"`
	PersonEmail     string    `json:"personEmail,omitempty"`
	MentionedPeople []string  `json:"mentionedPeople,omitempty"`
	Created         time.Time `json:"created,omitzero"`
	Extension
}

// Webhook is a webhook subscription. Secret is the HMAC key used to sign
// deliveries and is required to register a notification.
type Webhook struct {
	ID        string        `json:"id,omitempty"`
	Name      string        `json:"name,omitempty"`
	TargetURL string        `json:"targetUrl,omitempty"`
	Resource  EventResource `json:"resource,omitempty"`
	Event     EventType     `json:"event,omitempty"`
	Filter    string        `json:"filter,omitempty"`
	Secret    string        `json:"secret,omitempty"`
	Status    string        `json:"status,omitempty"`
	Created   time.Time     `json:"created,omitzero"`
	Extension
}

// WebhookEvent is the envelope of one webhook delivery. ID is the id of the
// webhook the delivery is addressed to.
type WebhookEvent struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	TargetURL string        `json:"targetUrl,omitempty"`
	Resource  EventResource `json:"resource,omitempty"`
	Event     EventType     `json:"event,omitempty"`
	Filter    string        `json:"filter,omitempty"`
	OrgID     string        `json:"orgId,omitempty"`
	CreatedBy string        `json:"createdBy,omitempty"`
	AppID     string        `json:"appId,omitempty"`
	OwnedBy   string        `json:"ownedBy,omitempty"`
	Status    string        `json:"status,omitempty"`
	ActorID   string        `json:"actorId,omitempty"`
	Created   time.Time     `json:"created,omitzero"`
	Data      EventData     `json:"data"`
}

// EventData is the resource snapshot carried by a delivery. Only ids are
// delivered; the resource itself must be fetched with the API.
type EventData struct {
	ID          string    `json:"id,omitempty"`
	SpaceID     string    `json:"roomId,omitempty"`
	SpaceType   string    `json:"roomType,omitempty"`
	PersonID    string    `json:"personId,omitempty"`
	PersonEmail string    `json:"personEmail,omitempty"`
	Files       []string  `json:"files,omitempty"`
	Created     time.Time `json:"created,omitzero"`
}

// FileInfo is the metadata of a downloadable file, taken from the
// response headers. Size is -1 when the server did not declare it.
type FileInfo struct {
	FileName  string
	MediaType MediaType
	Size      int64
}

func (f *FileInfo) setFileInfo(info FileInfo) {
	*f = info
}

// FileData is a downloaded file. Stream holds the whole body in memory,
// positioned at offset 0, and is owned by the caller.
type FileData struct {
	FileInfo
	Stream *bytes.Reader
}

func (f *FileData) setFileData(body []byte) {
	f.Stream = bytes.NewReader(body)
}

type fileInfoReceiver interface {
	setFileInfo(FileInfo)
}

type fileDataReceiver interface {
	setFileData([]byte)
}

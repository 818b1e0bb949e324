package bridge

import "github.com/eliteGoblin/focusd/web_mon/internal/domain"

// Message types sent by the extension.
const (
	MsgTabActivated = string(domain.TabActivated)
	MsgNavigation   = string(domain.Navigated)
	MsgTabUpdated   = string(domain.TabUpdated)
	MsgPageComplete = string(domain.PageComplete)
	MsgFocus        = "focus"
	MsgAck          = "ack"
)

// Command types sent to the extension.
const (
	CmdNavigate  = "navigate"
	CmdSetImages = "set_images"
	CmdSetVideos = "set_videos"
	CmdReload    = "reload"
)

// Popup actions.
const (
	ActionToggleImages  = "toggleImagesSetting"
	ActionToggleVideos  = "toggleVideosSetting"
	ActionMediaState    = "getMediaBlockingState"
	StatusDone          = "done"
	StatusError         = "error"
	extensionSendBuffer = 32
	popupSendBuffer     = 16
	browserEventBuffer  = 256
)

// ExtensionMessage is anything the extension reports.
type ExtensionMessage struct {
	Type    string `json:"type"`
	TabID   int    `json:"tabId"`
	URL     string `json:"url,omitempty"`
	FrameID int    `json:"frameId,omitempty"`
	Focused *bool  `json:"focused,omitempty"`

	// ack fields
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// Command is an effector request for the extension.
type Command struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	TabID   int    `json:"tabId"`
	URL     string `json:"url,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// PopupRequest is an action sent by the popup.
type PopupRequest struct {
	Action string `json:"action"`
}

// StatusReply answers the toggle actions.
type StatusReply struct {
	Status string `json:"status"`
}

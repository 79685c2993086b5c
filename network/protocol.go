package network

// Inbound events (client -> server).
const (
	EvtAuthenticate      = "authenticate"
	EvtCreateRoom        = "createRoom"
	EvtJoinRoom          = "joinRoom"
	EvtLeaveRoom         = "leaveRoom"
	EvtPlayerReady       = "playerReady"
	EvtGameInput         = "gameInput"
	EvtGetAvailableRooms = "getAvailableRooms"
	EvtInviteCreate      = "inviteCreate"
	EvtInviteResponse    = "inviteResponse"
)

// Outbound events (server -> client).
const (
	EvtAuthenticated  = "authenticated"
	EvtRoomCreated    = "roomCreated"
	EvtRoomUpdated    = "roomUpdated"
	EvtPlayerJoined   = "playerJoined"
	EvtPlayerReadyOut = "playerReady"
	EvtPlayerLeft     = "playerLeft"
	EvtAvailableRooms = "availableRooms"
	EvtCountdown      = "countdown"
	EvtGameStarted    = "gameStarted"
	EvtGameUpdate     = "gameUpdate"
	EvtGameEnd        = "gameEnd"
	EvtGameInvite     = "gameInvite"
	EvtInviteSent     = "inviteSent"
	EvtInviteAccepted = "inviteAccepted"
	EvtInviteDeclined = "inviteDeclined"
	EvtPresence       = "presence"
	EvtError          = "error"
)

// Close codes. Eviction is sent to a stale connection replaced by a
// newer login under the same display name.
const (
	CloseNormal  = 1000
	CloseEvicted = 4001
)

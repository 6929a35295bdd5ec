package protocol

// Client -> Server
const (
	MsgCreateRoom    = "createRoom"
	MsgJoinRoom      = "joinRoom"
	MsgSendChat      = "sendChat"
	MsgDeleteMessage = "deleteMessage"
	MsgTypingStart   = "typingStart"
	MsgTypingStop    = "typingStop"

	// MsgPrivateMessage flows both ways: the send request and the copy
	// delivered to recipient and sender use the same type.
	MsgPrivateMessage = "privateMessage"
)

// Server -> Client
const (
	MsgRoomJoined       = "roomJoined"
	MsgLoginError       = "loginError"
	MsgKicked           = "kicked"
	MsgLoadHistory      = "loadHistory"
	MsgChatMessage      = "chatMessage"
	MsgSystemMessage    = "systemMessage"
	MsgPresenceSnapshot = "presenceSnapshot"
	MsgRoleAssigned     = "roleAssigned"
	MsgPhaseChanged     = "phaseChanged"
	MsgCountdownTick    = "countdownTick"
	MsgGameOver         = "gameOver"
	MsgLeaderChanged    = "leaderChanged"
	MsgMessageDeleted   = "messageDeleted"
	MsgTyping           = "typing"
)

type ClientMessage struct {
	Type      string `json:"type"`
	Name      string `json:"displayName,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	RoomCode  string `json:"roomCode,omitempty"`
	Game      bool   `json:"game,omitempty"` // createRoom: request game rules
	Text      string `json:"text,omitempty"`
	To        string `json:"to,omitempty"` // privateMessage recipient
	MessageID string `json:"messageId,omitempty"`
}

type ChatMessage struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	Kind      string `json:"kind"` // "user" | "system"
	Timestamp string `json:"timestamp"`
	Secret    bool   `json:"isSecret,omitempty"`
}

const (
	KindUser   = "user"
	KindSystem = "system"
)

// MemberView is one presence entry as a particular viewer sees it. Alignment
// is set only on snapshots sent to a viewer holding the Sheriff role, for
// members that viewer has investigated.
type MemberView struct {
	Name      string `json:"name"`
	Avatar    string `json:"avatar,omitempty"`
	Alive     bool   `json:"isAlive"`
	Leader    bool   `json:"isLeader"`
	Muted     bool   `json:"isMuted"`
	Voted     bool   `json:"hasVoted"`
	Spectator bool   `json:"isSpectator"`
	Alignment string `json:"alignment,omitempty"` // "Mafia" | "Town"
}

type ServerMessage struct {
	Type        string        `json:"type"`
	RoomCode    string        `json:"roomCode,omitempty"`
	IsLeader    bool          `json:"isLeader,omitempty"`
	IsGameRoom  bool          `json:"isGameRoom,omitempty"`
	IsSpectator bool          `json:"isSpectator,omitempty"`
	LeaderName  string        `json:"leaderName,omitempty"`
	Title       string        `json:"title,omitempty"`
	Message     string        `json:"message,omitempty"`
	Commands    []string      `json:"commandList,omitempty"`
	History     []ChatMessage `json:"messages,omitempty"`
	Chat        *ChatMessage  `json:"chat,omitempty"`
	Members     []MemberView  `json:"members,omitempty"`
	Role        string        `json:"role,omitempty"`
	Goal        string        `json:"goalText,omitempty"`
	Faction     string        `json:"faction,omitempty"`
	Phase       string        `json:"phase,omitempty"`
	Round       int           `json:"round,omitempty"`
	Seconds     int           `json:"secondsRemaining,omitempty"`
	Active      bool          `json:"active,omitempty"`
	Winner      string        `json:"winningFaction,omitempty"`
	MessageID   string        `json:"messageId,omitempty"`
	Author      string        `json:"author,omitempty"`    // typing relay
	Recipient   string        `json:"recipient,omitempty"` // private messages
}

package wecom

const (
	MsgTypeText   = "text"
	MsgTypeStream = "stream"
)

// EncryptedRequest is the body of a POST callback.
type EncryptedRequest struct {
	Encrypt string `json:"encrypt" validate:"required"`
}

// Message is a decrypted callback message.
type Message struct {
	MsgID    string  `json:"msgid"    validate:"required"`
	AibotID  string  `json:"aibotid"`
	ChatID   string  `json:"chatid"`
	ChatType string  `json:"chattype"`
	From     From    `json:"from"`
	MsgType  string  `json:"msgtype"  validate:"required"`
	Text     *Text   `json:"text,omitempty"   validate:"required_if=MsgType text"`
	Stream   *Stream `json:"stream,omitempty" validate:"required_if=MsgType stream"`
}

type From struct {
	UserID string `json:"userid"`
}

type Text struct {
	Content string `json:"content" validate:"required"`
}

type Stream struct {
	ID string `json:"id" validate:"required"`
}

// StreamReply is the plaintext reply carrying the state of a streamed answer.
type StreamReply struct {
	MsgType string      `json:"msgtype"`
	Stream  StreamFrame `json:"stream"`
}

type StreamFrame struct {
	ID      string `json:"id"`
	Finish  bool   `json:"finish"`
	Content string `json:"content"`
}

func NewStreamReply(id string, finish bool, content string) StreamReply {
	return StreamReply{
		MsgType: MsgTypeStream,
		Stream: StreamFrame{
			ID:      id,
			Finish:  finish,
			Content: content,
		},
	}
}

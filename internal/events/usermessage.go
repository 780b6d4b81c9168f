package events

// UserMessageType is the severity of a user message.
type UserMessageType int

const (
	UserMessageNone UserMessageType = iota
	UserMessageInformation
	UserMessageWarning
	UserMessageError
)

func (t UserMessageType) String() string {
	switch t {
	case UserMessageInformation:
		return "Information"
	case UserMessageWarning:
		return "Warning"
	case UserMessageError:
		return "Error"
	default:
		return "None"
	}
}

// UserMessageOrigin is where a message is displayed.
type UserMessageOrigin int

const (
	OriginGlobal UserMessageOrigin = iota + 1
	OriginFormView
)

// UserMessage is a message shown in a dialog until acknowledged.
type UserMessage struct {
	Category UserMessageType
	Origin   UserMessageOrigin
	Message  string
	Title    string
}

// UIStrings resolves localized UI strings.
type UIStrings interface {
	UIString(id string) string
}

// NewUserMessage returns a global message titled after its category in the
// user language.
func NewUserMessage(dict UIStrings, category UserMessageType, message string) *UserMessage {
	return &UserMessage{
		Category: category,
		Origin:   OriginGlobal,
		Message:  message,
		Title:    dict.UIString(category.String()),
	}
}

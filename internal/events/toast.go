package events

import (
	"strings"
	"time"

	"github.com/maruel/ksid"
)

// Notification manager scopes.
const (
	ToastManagerScope      = "RgfToastManager"
	CoreNotificationsScope = "CoreNotificationManager"
)

// ToastType selects the look of a toast.
type ToastType int

const (
	ToastDefault ToastType = iota
	ToastInfo
	ToastWarning
	ToastError
	ToastSuccess
)

func (t ToastType) String() string {
	switch t {
	case ToastInfo:
		return "Info"
	case ToastWarning:
		return "Warning"
	case ToastError:
		return "Error"
	case ToastSuccess:
		return "Success"
	default:
		return "Default"
	}
}

// Removed is the Delay of a toast that must be taken off screen.
const Removed time.Duration = -1

// DefaultDelay returns how long a toast of type t stays visible. 0 keeps it
// until closed.
func DefaultDelay(t ToastType) time.Duration {
	switch t {
	case ToastError:
		return 0
	case ToastWarning:
		return 10 * time.Second
	default:
		return 5 * time.Second
	}
}

// Toast is a transient notification.
type Toast struct {
	ID          ksid.ID
	Title       string
	Status      string
	Body        string
	Type        ToastType
	Delay       time.Duration
	TriggeredAt time.Time
}

// NewToast returns a toast with the default delay of typ.
func NewToast(title, body string, typ ToastType) *Toast {
	return &Toast{
		ID:          ksid.NewID(),
		Title:       title,
		Body:        body,
		Type:        typ,
		Delay:       DefaultDelay(typ),
		TriggeredAt: time.Now(),
	}
}

// NewActionToast returns a toast reporting action, for example a save in
// progress.
func NewActionToast(status, title, action, message string, typ ToastType) *Toast {
	t := NewToast(title, ActionTemplate(action, message), typ)
	t.Status = status
	return t
}

// WithDelay sets the delay and returns t.
func (t *Toast) WithDelay(d time.Duration) *Toast {
	t.Delay = d
	return t
}

// Recreate marks t removed and returns a copy with a new status and type.
func (t *Toast) Recreate(status string, typ ToastType) *Toast {
	t.Delay = Removed
	n := NewToast(t.Title, t.Body, typ)
	n.Status = status
	return n
}

// RecreateAsSuccess replaces t with a success toast.
func (t *Toast) RecreateAsSuccess(status string) *Toast {
	return t.Recreate(status, ToastSuccess)
}

// Remove marks t removed and returns it.
func (t *Toast) Remove() *Toast {
	t.Delay = Removed
	return t
}

// IsRemoved reports whether t must be taken off screen.
func (t *Toast) IsRemoved() bool {
	return t.Delay < 0
}

// ActionTemplate renders the body of an action toast.
func ActionTemplate(action, message string) string {
	if strings.TrimSpace(message) == "" {
		return "<div><strong>" + action + "</strong></div>"
	}
	return "<div><strong>" + action + ":</strong>&#32;<span>" + message + "</span></div>"
}

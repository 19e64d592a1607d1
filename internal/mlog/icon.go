package mlog

import (
	"fmt"
	"io"

	"github.com/dogmatiq/iago/must"
)

const (
	// ProcessIcon is the icon shown directly before a process rank. It is the
	// "number sign", indicating that the label is a position within the group.
	ProcessIcon Icon = "#"

	// TagIcon is the icon shown directly before a message tag. It is the
	// "section sign", indicating the logical channel a message belongs to.
	TagIcon Icon = "§"

	// SendIcon is the icon shown to indicate that a message is being sent. It
	// is an upward pointing arrow, as such "outbound" messages could be
	// considered as being "uploaded" to a peer.
	SendIcon Icon = "▲"

	// SendErrorIcon is a variant of SendIcon used when there is an error
	// condition. It is a hollow version of the regular send icon.
	SendErrorIcon Icon = "△"

	// ReceiveIcon is the icon shown to indicate that a message has been
	// received. It is a downward pointing arrow.
	ReceiveIcon Icon = "▼"

	// ReceiveErrorIcon is a variant of ReceiveIcon used when there is an error
	// condition. It is a hollow version of the regular receive icon.
	ReceiveErrorIcon Icon = "▽"

	// InvokeIcon is the icon shown when a remote method invocation is
	// triggered or dispatched. It is a lightning bolt, representing a
	// "trigger".
	InvokeIcon Icon = "ϟ"

	// LocalIcon is shown alongside InvokeIcon when an invocation is
	// short-circuited to the local process. It is a circular arrow,
	// indicating that the call "comes back" to the caller.
	LocalIcon Icon = "↺"

	// WarningIcon is the icon shown when logging a non-fatal diagnostic.
	WarningIcon Icon = "⚠"

	// ErrorIcon is the icon shown when logging information about an error.
	// It is a heavy cross, indicating a failure.
	ErrorIcon Icon = "✖"

	// SeparatorIcon is an icon used to separate strings of unrelated text inside a
	// log message. It is a large bullet, intended to have a large visual impact.
	SeparatorIcon Icon = "●"
)

// Icon is a unicode symbol used as an icon in log messages.
type Icon string

func (i Icon) String() string {
	return string(i)
}

// WriteTo writes a string representation of the icon to w.
// If i is the zero-value, a single space is rendered.
func (i Icon) WriteTo(w io.Writer) (int64, error) {
	s := i.String()
	if i == "" {
		s = " "
	}

	n, err := io.WriteString(w, s)
	return int64(n), err
}

// WithLabel return an IconWithLabel containing this icon and the given label.
func (i Icon) WithLabel(f string, v ...interface{}) IconWithLabel {
	return IconWithLabel{
		i,
		formatLabel(fmt.Sprintf(f, v...)),
	}
}

// IconWithLabel is a container for an icon and its associated text label.
type IconWithLabel struct {
	Icon  Icon
	Label string
}

func (i IconWithLabel) String() string {
	return i.Icon.String() + " " + i.Label
}

// WriteTo writes a string representation of the icon and its label to w.
func (i IconWithLabel) WriteTo(w io.Writer) (_ int64, err error) {
	defer must.Recover(&err)

	n := must.WriteTo(w, i.Icon)
	n += must.WriteString(w, " ")
	n += must.WriteString(w, i.Label)

	return int64(n), err
}

// formatLabel formats a label for display.
func formatLabel(label string) string {
	if label == "" {
		return "-"
	}

	return label
}

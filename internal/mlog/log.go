package mlog

import (
	"fmt"

	"github.com/dogmatiq/dodeca/logging"
)

// LogSend logs a debug message indicating that a message has been sent to
// another process.
func LogSend(
	log logging.Logger,
	dst, tag, size int,
	err error,
) {
	if !logging.IsDebug(log) {
		return
	}

	icon := SendIcon
	if err != nil {
		icon = SendErrorIcon
	}

	logging.DebugString(
		log,
		String(
			[]IconWithLabel{
				ProcessIcon.WithLabel("%d", dst),
				TagIcon.WithLabel("%d", tag),
			},
			[]Icon{
				icon,
				errorIcon(err),
			},
			fmt.Sprintf("%d byte(s)", size),
			errorText(err),
		),
	)
}

// LogReceive logs a debug message indicating that a message has been
// received from another process.
func LogReceive(
	log logging.Logger,
	src, tag, size int,
	err error,
) {
	if !logging.IsDebug(log) {
		return
	}

	icon := ReceiveIcon
	if err != nil {
		icon = ReceiveErrorIcon
	}

	logging.DebugString(
		log,
		String(
			[]IconWithLabel{
				ProcessIcon.WithLabel("%d", src),
				TagIcon.WithLabel("%d", tag),
			},
			[]Icon{
				icon,
				errorIcon(err),
			},
			fmt.Sprintf("%d byte(s)", size),
			errorText(err),
		),
	)
}

// LogInvoke logs a debug message indicating that a remote method has been
// triggered on (or dispatched from) the process with the given rank.
func LogInvoke(
	log logging.Logger,
	peer, tag, size int,
	local bool,
) {
	if !logging.IsDebug(log) {
		return
	}

	var icon Icon
	if local {
		icon = LocalIcon
	}

	logging.DebugString(
		log,
		String(
			[]IconWithLabel{
				ProcessIcon.WithLabel("%d", peer),
				TagIcon.WithLabel("%d", tag),
			},
			[]Icon{
				InvokeIcon,
				icon,
			},
			fmt.Sprintf("%d argument byte(s)", size),
		),
	)
}

// LogWarning logs a non-fatal diagnostic.
func LogWarning(
	log logging.Logger,
	peer, tag int,
	err error,
) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{
				ProcessIcon.WithLabel("%d", peer),
				TagIcon.WithLabel("%d", tag),
			},
			[]Icon{
				WarningIcon,
				"",
			},
			err.Error(),
		),
	)
}

// LogError logs an error that could not be returned to a caller.
func LogError(
	log logging.Logger,
	peer, tag int,
	err error,
) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{
				ProcessIcon.WithLabel("%d", peer),
				TagIcon.WithLabel("%d", tag),
			},
			[]Icon{
				ErrorIcon,
				"",
			},
			err.Error(),
		),
	)
}

func errorIcon(err error) Icon {
	if err == nil {
		return ""
	}

	return ErrorIcon
}

func errorText(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

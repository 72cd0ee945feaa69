// SPDX-License-Identifier: MIT

package engine

import "github.com/ManuGH/streamgrab/internal/fsm"

// Status is a stream's download state.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether a download attempt has ended in this state.
func (s Status) Terminal() bool {
	return s == StatusDownloaded || s == StatusError || s == StatusCancelled
}

type event string

const (
	eventStart    event = "start"
	eventComplete event = "complete"
	eventFail     event = "fail"
	eventCancel   event = "cancel"
)

// lifecycle: idle -> downloading -> {downloaded | error | cancelled}; a
// failed or cancelled stream may start again, a downloaded one may not.
var lifecycle = fsm.MustNew([]fsm.Transition[Status, event]{
	{From: StatusIdle, Event: eventStart, To: StatusDownloading},
	{From: StatusError, Event: eventStart, To: StatusDownloading},
	{From: StatusCancelled, Event: eventStart, To: StatusDownloading},
	{From: StatusDownloading, Event: eventComplete, To: StatusDownloaded},
	{From: StatusDownloading, Event: eventFail, To: StatusError},
	{From: StatusDownloading, Event: eventCancel, To: StatusCancelled},
})

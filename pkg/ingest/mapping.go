package ingest

import (
	"github.com/dukex/botrelay/pkg/dify"
	"github.com/dukex/botrelay/pkg/models"
)

// Mapped is the stored shape of a recognized stream event.
type Mapped struct {
	Kind     models.EventKind
	Status   models.EventStatus
	Fragment *string
}

// Map translates an engine event into the stored vocabulary. ok is false for events the
// relay does not keep.
func Map(event dify.StreamEvent) (Mapped, bool) {
	switch event.Event {
	case dify.EventMessage:
		answer := event.Answer

		return Mapped{Kind: models.EventKindMessage, Status: models.EventStatusRunning, Fragment: &answer}, true
	case dify.EventMessageEnd:
		return Mapped{Kind: models.EventKindMessageEnd, Status: models.EventStatusSucceeded}, true
	case dify.EventNodeFinished:
		return Mapped{Kind: models.EventKindNodeFinished, Status: normalizeStatus(event.Data.Status)}, true
	case dify.EventWorkflowFinished:
		return Mapped{Kind: models.EventKindWorkflowFinished, Status: normalizeStatus(event.Data.Status)}, true
	case dify.EventError:
		return Mapped{Kind: models.EventKindOther, Status: models.EventStatusFailed}, true
	default:
		return Mapped{}, false
	}
}

func normalizeStatus(status string) models.EventStatus {
	switch status {
	case "succeeded":
		return models.EventStatusSucceeded
	case "failed", "stopped", "exception":
		return models.EventStatusFailed
	default:
		return models.EventStatusRunning
	}
}

package profile

import (
	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
)

// Event drives a profile lifecycle transition.
type Event string

const (
	EventCreate   Event = "create"
	EventActivate Event = "activate"
	// EventDemote is applied to the previous default during an activation.
	EventDemote Event = "demote"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
)

// Transition returns the state that follows from applying ev in state s.
//
//	draft   --create-->   stored
//	stored  --activate--> default
//	default --demote-->   stored
//	stored  --delete-->   retired
//
// Updates keep the state. Deleting the default is a Conflict, every other
// unlisted pair is a Validation error.
func Transition(s model.ProfileState, ev Event) (model.ProfileState, error) {
	const op = "profile_transition"
	switch {
	case s == model.StateDraft && ev == EventCreate:
		return model.StateStored, nil
	case s == model.StateStored && ev == EventActivate, s == model.StateDefault && ev == EventActivate:
		return model.StateDefault, nil
	case s == model.StateDefault && ev == EventDemote:
		return model.StateStored, nil
	case (s == model.StateStored || s == model.StateDefault) && ev == EventUpdate:
		return s, nil
	case s == model.StateStored && ev == EventDelete:
		return model.StateRetired, nil
	case s == model.StateDefault && ev == EventDelete:
		return s, apperr.Wrap(apperr.KindConflict, op, ErrDeleteDefault)
	default:
		return s, apperr.Errorf(apperr.KindValidation, op, "%w: %s on %s", ErrIllegalTransition, ev, s)
	}
}

// StateOf derives the state of a stored profile from its default flag.
func StateOf(p model.WeightProfile) model.ProfileState {
	switch {
	case p.State == model.StateRetired:
		return model.StateRetired
	case p.IsDefault:
		return model.StateDefault
	case p.State == model.StateDraft:
		return model.StateDraft
	default:
		return model.StateStored
	}
}

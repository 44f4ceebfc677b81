package notify

import "github.com/baechuer/newsroom/internal/domain"

type OutcomeKind string

const (
	OutcomeOK            OutcomeKind = "ok"
	OutcomeNoRecipients  OutcomeKind = "no_recipients"
	OutcomeNothingNew    OutcomeKind = "nothing_new"
	OutcomeLookupFailed  OutcomeKind = "lookup_failed"
	OutcomePersistFailed OutcomeKind = "persist_failed"
	OutcomePartial       OutcomeKind = "partial"
)

// Outcome is what a trigger did. Triggers never return errors: failures are
// logged and summarised here.
type Outcome struct {
	Kind       OutcomeKind
	Recipients int
	Created    int
	Delivered  int
	Failed     int
	Err        error
}

func (o Outcome) OK() bool { return o.Kind == OutcomeOK }

// CreateResult is the result of CreateNotification.
type CreateResult struct {
	Notification domain.SmartNotification
	Delivered    bool
	Err          error
}

func (r CreateResult) OK() bool { return r.Err == nil }

func (o *Outcome) add(r CreateResult) {
	if r.Err != nil {
		o.Failed++
		if o.Err == nil {
			o.Err = r.Err
		}
		return
	}
	o.Created++
	if r.Delivered {
		o.Delivered++
	}
}

func (o *Outcome) settle() {
	switch {
	case o.Failed == 0:
		o.Kind = OutcomeOK
	case o.Created == 0:
		o.Kind = OutcomePersistFailed
	default:
		o.Kind = OutcomePartial
	}
}

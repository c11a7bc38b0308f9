package app

import (
	"context"
	"errors"

	"botdash/clients/botapi"
	"botdash/clients/notifier"
)

// mutation is the shared shape of every mutating action: apply the change
// locally, persist it remotely, and on rejection revert the local change and
// surface exactly one error notification.
type mutation struct {
	apply   func()
	persist func(ctx context.Context) error
	revert  func()
	message func(err error) string
}

func runMutation(ctx context.Context, n notifier.Notifier, m mutation) error {
	m.apply()

	if err := m.persist(ctx); err != nil {
		m.revert()
		if n != nil {
			n.Notify(notifier.New(notifier.SeverityError, m.message(err)))
		}
		return err
	}
	return nil
}

// failureDetail prefers the backend's rejection reason over the wrapped
// transport error text.
func failureDetail(err error) string {
	var apiErr *botapi.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return err.Error()
}

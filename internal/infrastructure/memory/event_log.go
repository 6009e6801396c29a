package memory

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
)

type eventLog struct {
	st *state
}

func (l eventLog) Append(_ context.Context, e eventlog.Entry) error {
	md := make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		md[k] = v
	}
	e.Metadata = md
	l.st.events[e.OrderID] = append(l.st.events[e.OrderID], e)
	return nil
}

func (l eventLog) List(_ context.Context, orderID string) ([]eventlog.Entry, error) {
	return append([]eventlog.Entry(nil), l.st.events[orderID]...), nil
}

package media

import (
	"context"
	"errors"

	"github.com/matheus3301/wppdesk/internal/chat"
)

// Strategy is one named way of retrieving the attachment of an event.
type Strategy struct {
	Name  string
	Fetch func(ctx context.Context, evt chat.InboundEvent) ([]byte, error)
}

// Strategies builds the retrieval chain supported by a client: native
// decrypt, generic download, then raw fetch by message id.
func Strategies(d chat.Descriptor) []Strategy {
	var out []Strategy
	if d.Decrypt != nil {
		out = append(out, Strategy{Name: "decrypt", Fetch: d.Decrypt.DecryptMedia})
	}
	if d.Download != nil {
		out = append(out, Strategy{Name: "download", Fetch: d.Download.DownloadMedia})
	}
	if d.Raw != nil {
		raw := d.Raw
		out = append(out, Strategy{Name: "raw", Fetch: func(ctx context.Context, evt chat.InboundEvent) ([]byte, error) {
			return raw.FetchRaw(ctx, evt.ID)
		}})
	}
	return out
}

// RetrievalError reports that every strategy failed for one attachment.
type RetrievalError struct {
	MessageID string
	Errs      map[string]error
}

func (e *RetrievalError) Error() string {
	if len(e.Errs) == 0 {
		return "media " + e.MessageID + ": no retrieval strategy available"
	}
	return "media " + e.MessageID + ": all retrieval strategies failed"
}

func (e *RetrievalError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errs))
	for _, err := range e.Errs {
		errs = append(errs, err)
	}
	return errs
}

var errEmptyPayload = errors.New("empty payload")

// fetch runs the chain until a strategy returns a non-empty buffer.
func fetch(ctx context.Context, chain []Strategy, evt chat.InboundEvent) ([]byte, string, error) {
	rerr := &RetrievalError{MessageID: evt.ID, Errs: make(map[string]error)}
	for _, s := range chain {
		data, err := s.Fetch(ctx, evt)
		if err == nil && len(data) == 0 {
			err = errEmptyPayload
		}
		if err == nil {
			return data, s.Name, nil
		}
		rerr.Errs[s.Name] = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", rerr
}

package mongofeed

import (
	"errors"
	"fmt"
	"net"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/feedrelay/feedrelay/internal/event"
	"github.com/feedrelay/feedrelay/internal/feed"
)

// Server error codes the adapter cares about.
const (
	codeUnauthorized            = 13
	codeAuthenticationFailed    = 18
	codeInvalidResumeToken      = 260
	codeChangeStreamHistoryLost = 286
)

// changeDoc is the shape of a change stream document, as emitted by the
// server aggregation stage.
type changeDoc struct {
	ID struct {
		Data string `bson:"_data"`
	} `bson:"_id"`
	OperationType     string         `bson:"operationType"`
	DocumentKey       map[string]any `bson:"documentKey"`
	FullDocument      map[string]any `bson:"fullDocument"`
	UpdateDescription struct {
		UpdatedFields map[string]any `bson:"updatedFields"`
		RemovedFields []string       `bson:"removedFields"`
	} `bson:"updateDescription"`
}

// decodeChange maps one raw change document into a RawRecord. The
// collection and resume token are filled in by the caller.
func decodeChange(raw bson.Raw) (event.RawRecord, error) {
	var doc changeDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return event.RawRecord{}, fmt.Errorf("unmarshal change document: %w", err)
	}
	if doc.OperationType == "" {
		return event.RawRecord{}, errors.New("change document has no operationType")
	}

	return event.RawRecord{
		Op:       doc.OperationType,
		ID:       doc.ID.Data,
		Key:      doc.DocumentKey,
		Document: doc.FullDocument,
		Updated:  doc.UpdateDescription.UpdatedFields,
		Removed:  doc.UpdateDescription.RemovedFields,
	}, nil
}

// classify maps a driver error into the feed taxonomy. History loss and
// token rejection resolve to ErrInvalidResumeToken so the controller can
// apply its start-from-now policy; credential failures are plainly fatal;
// everything else (network, server selection, topology churn) is worth
// retrying.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) {
		switch {
		case srvErr.HasErrorCode(codeChangeStreamHistoryLost),
			srvErr.HasErrorCode(codeInvalidResumeToken),
			srvErr.HasErrorLabel("NonResumableChangeStreamError"):
			return feed.Fatal(fmt.Errorf("%w: %v", feed.ErrInvalidResumeToken, err))

		case srvErr.HasErrorCode(codeAuthenticationFailed),
			srvErr.HasErrorCode(codeUnauthorized):
			return feed.Fatal(err)
		}
		return feed.Transient(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return feed.Transient(err)
	}

	// Unrecognized driver errors (server selection timeouts and the like)
	// default to transient; the backoff cap bounds the damage if not.
	return feed.Transient(err)
}

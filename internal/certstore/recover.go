package certstore

import (
	"context"
	"errors"

	"github.com/hashicorp/go-multierror"

	"github.com/rcook/rust-tool-action/internal/logging"
	"github.com/rcook/rust-tool-action/internal/transaction"
)

// RecoverResult lists what Recover purged.
type RecoverResult struct {
	Journals int
	Purged   []string
}

// Recover purges every entry an unfinished journal in dir still lists and
// removes journals whose entries are all gone.
func Recover(ctx context.Context, store Store, dir string, logger logging.Logger) (*RecoverResult, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	var result error
	journals, loadErrs := transaction.LoadAll(dir)
	for _, e := range loadErrs {
		result = multierror.Append(result, e)
	}

	res := &RecoverResult{Journals: len(journals)}
	for _, j := range journals {
		for _, e := range j.Outstanding() {
			err := store.Remove(ctx, e.Thumbprint)
			switch {
			case err == nil:
				res.Purged = append(res.Purged, e.Thumbprint)
				logger.Info("purged leftover certificate", "thumbprint", e.Thumbprint, "subject", e.Subject, "journal", j.ID)
				j.UpdateState(e.Thumbprint, transaction.StateCompleted, nil)
			case errors.Is(err, ErrNotFound):
				j.UpdateState(e.Thumbprint, transaction.StateCompleted, nil)
			default:
				j.UpdateState(e.Thumbprint, transaction.StateFailed, err)
				result = multierror.Append(result, err)
			}
		}

		if j.AllCompleted() {
			if err := j.Discard(dir); err != nil {
				result = multierror.Append(result, err)
			}
		} else if err := j.Save(dir); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if result != nil {
		return res, result
	}
	return res, nil
}

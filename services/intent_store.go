package services

import (
	"context"

	"github.com/naisu-labs/naisu/db"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
)

const maxIntentWriteAttempts = 5

// errUnchanged tells updateIntent the stored intent needs no write
var errUnchanged = errors.New("intent unchanged")

// updateIntent reads the stored intent, applies change and writes it back. A write that lost
// against another writer is retried on a fresh read, so change must be safe to run again.
// When change returns errUnchanged nothing is written and the stored intent is returned.
func updateIntent(
	ctx context.Context,
	database db.Database,
	id string,
	change func(intent *models.Intent) error,
) (intent *models.Intent, written bool, err error) {
	for attempt := 1; ; attempt++ {
		intent, err = database.GetIntent(ctx, id)
		if err != nil {
			return nil, false, err
		}

		if err := change(intent); err != nil {
			if errors.Is(err, errUnchanged) {
				return intent, false, nil
			}
			return intent, false, err
		}

		err = database.UpdateIntent(ctx, intent)
		if err == nil {
			return intent, true, nil
		}

		if !errors.Is(err, db.ErrIntentConflict) || attempt == maxIntentWriteAttempts {
			return nil, false, err
		}
	}
}

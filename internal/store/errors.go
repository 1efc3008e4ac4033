package store

import (
	"errors"
	"fmt"

	"pragrisk/internal/models"

	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrReferenced = errors.New("still referenced")
)

// translate maps driver level errors (gorm runs with TranslateError) onto the
// store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", models.ErrMissingReference, err)
	}
	return err
}

func isForeignKey(err error) bool {
	return errors.Is(err, gorm.ErrForeignKeyViolated)
}

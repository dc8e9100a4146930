package sbom

import (
	"os"

	"github.com/pkg/errors"
	"github.com/relvet/relvet/utils"
)

const backupSuffix = ".relvet-backup"

// ScopedRewrite applies a mutation to a file for the duration of `during` and
// guarantees the original content is restored on every exit path, including
// errors raised by the operation itself. The original is kept in a sibling
// backup file so a crashed process can still be recovered by hand.
func ScopedRewrite(path string, mutate func([]byte) ([]byte, error), during func() error) (err error) {
	original, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed reading file for scoped rewrite")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mutated, err := mutate(original)
	if err != nil {
		return errors.Wrap(err, "mutation failed")
	}
	backupPath := path + backupSuffix
	if err = utils.CopyFile(path, backupPath); err != nil {
		return errors.Wrap(err, "failed writing backup file")
	}
	defer func() {
		restoreErr := os.Rename(backupPath, path)
		if restoreErr != nil && err == nil {
			err = errors.Wrap(restoreErr, "failed restoring original file")
		}
	}()
	if err = os.WriteFile(path, mutated, info.Mode()); err != nil {
		return errors.Wrap(err, "failed writing mutated file")
	}
	return during()
}

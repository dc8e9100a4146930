package publish

import (
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
	"github.com/relvet/relvet/entities"
	"github.com/relvet/relvet/utils"
)

const packTimeout = 2 * time.Minute

// CollectPackStats runs a dry-run pack in the target directory and extracts
// tarball measurements. Stats are informational only, so failures are
// reported to the caller as an error rather than a verdict.
func CollectPackStats(runner utils.CmdRunner, directory string) (*entities.PackStats, error) {
	stdout, stderr, err := runner.Run(directory, packTimeout, "npm", "pack", "--dry-run", "--json")
	if err != nil {
		return nil, errors.Wrap(err, strings.TrimSpace(string(stderr)))
	}
	return parsePackReport(stdout)
}

// parsePackReport reads the JSON array emitted by `npm pack --json`.
func parsePackReport(data []byte) (*entities.PackStats, error) {
	stats := &entities.PackStats{}
	var parseErr error
	index := 0
	_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, offset int, _ error) {
		if index > 0 {
			return
		}
		index++
		stats.PackedSize, parseErr = jsonparser.GetInt(value, "size")
		if parseErr != nil {
			return
		}
		stats.UnpackedSize, parseErr = jsonparser.GetInt(value, "unpackedSize")
		if parseErr != nil {
			return
		}
		stats.FileCount, parseErr = jsonparser.GetInt(value, "entryCount")
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed parsing pack report")
	}
	if parseErr != nil {
		return nil, errors.Wrap(parseErr, "failed parsing pack report")
	}
	if index == 0 {
		return nil, errors.New("pack report is empty")
	}
	return stats, nil
}

// Pack creates the package tarball in destination and returns its filename.
// The destination directory is created when absent.
func Pack(runner utils.CmdRunner, directory, destination string) (string, error) {
	if err := utils.CreateDirIfNotExist(destination); err != nil {
		return "", err
	}
	stdout, stderr, err := runner.Run(directory, packTimeout, "npm", "pack", "--json", "--pack-destination", destination)
	if err != nil {
		return "", errors.Wrap(err, strings.TrimSpace(string(stderr)))
	}
	var filename string
	index := 0
	_, err = jsonparser.ArrayEach(stdout, func(value []byte, dataType jsonparser.ValueType, offset int, _ error) {
		if index > 0 {
			return
		}
		index++
		filename, _ = jsonparser.GetString(value, "filename")
	})
	if err != nil {
		return "", errors.Wrap(err, "failed parsing pack report")
	}
	if filename == "" {
		return "", errors.New("pack reported no tarball filename")
	}
	return filename, nil
}

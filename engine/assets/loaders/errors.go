package loaders

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spaghettifunk/dragonfire/engine/core"
)

func openError(kind core.ResourceKind, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return core.NewResourceError(kind, path, fmt.Errorf("%w: %s", core.ErrResourceNotFound, err))
	}
	return core.NewResourceError(kind, path, err)
}

func decodeError(kind core.ResourceKind, path string, err error) error {
	return core.NewResourceError(kind, path, fmt.Errorf("%w: %s", core.ErrResourceDecode, err))
}

package models

import (
	"fmt"

	"github.com/remus-chat/remus-node/pkg"
)

// errBad wraps a validation message with pkg.ErrBadRequest so the handler
// layer maps it to 400 without string matching.
func errBad(format string, args ...any) error {
	return fmt.Errorf("%w: %s", pkg.ErrBadRequest, fmt.Sprintf(format, args...))
}
